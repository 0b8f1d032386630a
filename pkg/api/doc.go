// Package api assembles the HTTP server: the login route, every resource
// handler, the middleware chain and the separate health and metrics router.
//
//	srv, err := api.NewServer(api.Options{
//		DB:       db,
//		Logger:   logger,
//		Registry: registry,
//		Issuer:   issuer,
//		Verifier: verifier,
//		Audit:    auditLogger,
//	})
//	srv.LoadDirectories(ctx)
//	http.ListenAndServe(":5003", srv)
package api
