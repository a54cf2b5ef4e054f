// Package flowcloud provides the core of the FlowCloud file gateway: origin
// verification against a shared secret, per-file capability tokens, and
// safe path resolution for file serving.
//
// Partner sites fetch files server-to-server. The gateway never trusts the
// Origin header by itself; a caller proves it holds the shared secret either
// by signing a timestamped request or by answering an HMAC challenge sent
// back to its own verify endpoint. Public links instead carry a per-file
// access key issued through the privileged metadata endpoint.
//
// # Key Components
//
//   - Sign / Verify: HMAC-SHA256 hex signatures with constant-time compare
//   - OriginVerifier: timestamped and challenge-response verification
//   - Vault: issues and validates per-file access keys over a KeyStore
//   - Gateway: path normalization plus Open, OpenWithKey and Describe over a FileStorage
//   - HostStore: allowed-origins record consulted by the access gate
//
// # Example Usage
//
//	verifier := flowcloud.NewOriginVerifier(flowcloud.OriginVerifierConfig{Secret: secret})
//	vault := flowcloud.NewVault(keybackend.NewMapStore(), flowcloud.VaultConfig{})
//	gateway, err := flowcloud.NewGateway(vault, storage, flowcloud.GatewayConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Issue a public link key
//	meta, err := gateway.Describe(ctx, "docs/report.pdf")
//
//	// Serve it back
//	obj, err := gateway.OpenWithKey(ctx, "docs/report.pdf", meta.AccessKey)
//
// See the http package for the routes and access gate, and the keybackend,
// hostbackend and database packages for store implementations.
package flowcloud
