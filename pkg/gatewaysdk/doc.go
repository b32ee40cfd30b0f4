// Package gatewaysdk is a Go client for the policygate HTTP API.
//
// A Client performs unauthenticated calls and creates Sessions:
//
//	client := gatewaysdk.NewClient("http://localhost:8080")
//	session, err := client.Login(ctx, "alice")
//	if err != nil {
//		return err
//	}
//	defer session.Logout(ctx)
//
//	policies, err := session.ListPolicies(ctx)
//
// A Session refreshes its access token shortly before it expires. Failed
// calls return an *APIError carrying the gateway's error code, so callers can
// branch with errors.As or the Is* helpers.
package gatewaysdk
