// Package api provides the HTTP API server for tasktrack authentication.
//
// # Routes
//
//	POST /auth/login           exchange an identity provider ID token for a session token
//	POST /auth/firebase-login  alias of /auth/login
//	POST /auth/logout          revoke the presented session token (protected)
//	GET  /user                 the authenticated user (protected)
//
// Protected routes go through middleware.Authenticator, which accepts either
// a session token issued by /auth/login or an identity provider ID token.
//
// # Usage
//
//	server := api.NewServer(verifier, provisioner, sessions, api.Options{
//		Logger:             logger,
//		Metrics:            metrics,
//		CORSAllowedOrigins: []string{"http://localhost:3000"},
//	})
//	http.ListenAndServe(":8080", server)
//
// Further route groups can be mounted on Router() and protected with
// Authenticator().Handler.
package api
