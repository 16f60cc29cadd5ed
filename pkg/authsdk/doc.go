/*
Package authsdk is the client side of the schoolgate session engine.

# SDKClient and Session

SDKClient covers the unauthenticated endpoints and cookie-based access:

	client := authsdk.NewSDKClient("https://gate.example.edu")

	health, err := client.GetLiveness(ctx)

	session, login, err := client.Login(ctx, email, password, "/profesor/clases")
	// login.RedirectTo is where the user should land

A Session carries a bearer token and replaces it whenever the gate issues a
new one (role switch, revert, registration completion, store-driven reissue):

	status, err := session.SwitchStatus(ctx)
	resp, err := session.SwitchRole(ctx, authsdk.SwitchRoleRequest{
		TargetRole: rbac.RoleTeacher,
		Reason:     "support ticket 4411",
	})
	resp, err = session.RevertRole(ctx)

# Reconciler

Reconciler keeps a client runtime's view of the session consistent with the
gate across tabs and identity sources. It is an explicit state machine:

	loading -> authenticated | unauthenticated
	any     -> redirected (terminal until the next Mount)

	r := authsdk.NewReconciler(authsdk.ReconcilerConfig{
		Sources: []authsdk.Source{
			client.SessionSource("credentials"),
			client.SessionSource("oauth"),
		},
		Navigate: func(to string) { router.Push(to) },
	})
	r.Mount(ctx, "/admin/usuarios")

	// another tab changed the cookie
	r.Signal()

It never redirects while loading, navigates at most once per Mount, keeps
its last-known state when a source fails transiently and lets only the newest
check update the state.

# Errors

Non-2xx responses decode into *APIError. Use errors.Is with a code-only
APIError to match:

	if errors.Is(err, &authsdk.APIError{Code: authsdk.ErrorCodeNotMaster}) {
		...
	}
*/
package authsdk
