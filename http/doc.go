// Package http provides the gateway's HTTP surface.
//
// Every request passes the access gate before reaching a route. The gate
// runs these rules in order and the first failure denies with a 404 page
// identical to an unknown route:
//
//   - path allow-list (GateConfig.AllowedPrefixes, AllowedSuffixes, the
//     verify path, and /test in dev mode)
//   - origin: strict routes deny an Origin missing from the allowed-hosts
//     record, and the proxy route also denies a request with no Origin
//   - proxy marker header (X-App-Request: 1 by default)
//   - shared secret configured
//
// The proxy route then verifies the caller through VerifyMiddleware. A
// request carrying X-Flowcloud-Signature is checked in timestamped mode;
// any other request is challenged at its Origin. Verification failures
// return 403.
//
// # Routes
//
//	GET      /api/proxy/files/{path}  gated proxy download
//	GET      /api/files/{path}        metadata and access key (X-Access-Key)
//	GET      /files/{path}?key=...    capability link, empty-body errors
//	GET|POST /flowcloud-auth          challenge answer (configurable path)
//	GET      /test                    dev mode only
//
// # Usage
//
//	verifier := flowcloud.NewOriginVerifier(flowcloud.OriginVerifierConfig{Secret: secret})
//	handler := http.NewHandler(&http.HandlerConfig{
//	    Hosts:    hostbackend.NewHostStore("allowed.json"),
//	    Verifier: verifier,
//	}, gateway)
//	http.ListenAndServe(":8080", handler.Router())
//
// CORS headers are emitted only for origins in the allowed-hosts record,
// which is re-read on each request so admin changes apply without a
// restart.
package http
