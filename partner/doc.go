// Package partner is the partner-server side of the gateway protocol.
//
// A partner mounts the verify endpoint so the gateway can challenge it:
//
//	r := chi.NewRouter()
//	partner.Mount(r, os.Getenv("SYSTEM_ACCESS_KEY"), "/flowcloud-auth")
//
// and uses a Client to call the gateway:
//
//	client, err := partner.New(partner.Config{
//		Endpoint: "https://files.example.com",
//		Origin:   "https://partner.example.com",
//		Secret:   secret,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	f, err := client.Fetch(ctx, "reports/q3.pdf")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer f.Body.Close()
//
// Fetch signs each request with a timestamp, so it works even when the
// gateway cannot reach the partner. Describe returns file metadata and an
// access key; Link and Download use that key on the public route.
package partner
