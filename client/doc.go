// Package client issues coordinator calls against a tclib participant over
// HTTP.
//
//	cli, err := client.New(client.Config{Endpoint: "https://participant:9443", HTTPClient: httpClient})
//	resp, err := cli.Call(ctx, api.ServiceCommitTransaction,
//		session.Uint32(uint32(api.PhaseCommitTransStart)),
//		session.Uint32(sessionID), session.Uint32(configID),
//		session.Uint32(uint32(api.ConfigGlobal)), session.String(""))
//	if resp.Result != api.ResultOK { ... }
//
// Transport failures and non-200 answers are returned as errors (*APIError for
// answers carrying the JSON error envelope); protocol outcomes are reported in
// Response.Result.
package client
