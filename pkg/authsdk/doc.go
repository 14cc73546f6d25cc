/*
Package authsdk provides a Go client for the SSO broker.

# Overview

The broker signs users in with an upstream OpenID Connect provider and
keeps the result as a server-side session referenced by an encrypted,
HTTP-only cookie. SDKClient drives the same endpoints a browser would and
keeps that cookie in its own cookie jar, so one SDKClient stands for one
signed-in user.

	client := authsdk.NewSDKClient("http://localhost:8000")

	// Where to send the user
	authURL, err := client.LoginURL(ctx)

	// After the provider redirected back with code and state
	dest, err := client.Callback(ctx, code, state)

	me, err := client.Me(ctx)
	fmt.Println(me.User.Email, me.ExpiresAt)

	err = client.Logout(ctx)

# Redirects

The client never follows redirects. LoginURL returns the provider URL the
broker redirected to; Callback returns the frontend URL. A failed callback
is also a redirect, to the broker's failure destination, because the broker
deliberately hides which check failed.

# Error Handling

Non-2xx replies are returned as *APIError. Errors compare by code, so

	if errors.Is(err, authsdk.ErrUnauthenticated) {
		// start a new login
	}

works for any unauthenticated reply.
*/
package authsdk
