// Package restexec executes single authenticated REST calls described by a
// plain Descriptor and reports them as a Result.
//
// # Features
//
//   - Six authentication strategies: none, basic, bearer, API key (header or
//     query), OAuth2 client credentials and OAuth2 password grant
//   - OAuth2 tokens cached per grant, token endpoint and identity, in memory
//     or in Redis, with a 60s safety margin before expiry
//   - Per-call timeout, redirect and TLS verification policy
//   - Every outcome folded into a Success (any HTTP status) or a Failure
//     (configuration, authentication, transport or parse error)
//   - OpenTelemetry tracing and metrics on every round trip
//   - Opt-in circuit breaker and outbound rate limit
//
// # Quick Start
//
//	engine := restexec.New(
//	    restexec.WithServiceName("crm-connector"),
//	)
//
//	res := engine.Execute(ctx, restexec.Descriptor{
//	    BaseURL:   "https://api.example.com",
//	    Path:      "/v1/contacts",
//	    Method:    http.MethodPost,
//	    Body:      restexec.Body(`{"name":"Ada"}`),
//	    VerifySSL: true,
//	    Auth: restexec.ClientCredentialsAuth{
//	        TokenURL:     "https://auth.example.com/oauth/token",
//	        ClientID:     "crm",
//	        ClientSecret: secret,
//	    },
//	})
//
//	switch r := res.(type) {
//	case *restexec.Success:
//	    // r.StatusCode may be 4xx or 5xx; it is still a Success.
//	case *restexec.Failure:
//	    if r.Kind == restexec.KindAuthentication {
//	        // the token endpoint rejected the credentials
//	    }
//	}
//
// # Token Cache
//
// Tokens live in a tokencache.Store. Each Engine gets its own in-memory store
// unless one is supplied; engines sharing a store share tokens:
//
//	store := tokencache.NewRedis(rdb)
//	a := restexec.New(restexec.WithTokenStore(store))
//	b := restexec.New(restexec.WithTokenStore(store))
//
// Concurrent executions that miss on the same key may each run an exchange.
// The last token written wins; every one of them is valid.
//
// # Descriptor Files
//
// ParseDescriptor reads the JSON form used by the restexec command; see its
// documentation for the format.
package restexec
