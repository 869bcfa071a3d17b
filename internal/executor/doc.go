/*
Package executor issues the HTTP requests of a load run.

# Clients

NewClient builds the *http.Client every worker of a run shares:
  - Per-call timeout (timeoutms)
  - Redirects followed only when redir is set
  - Compression and keep-alive switches
  - HTTP/2 negotiation, on by default
  - TLS/mTLS: client certificate, CA pool, InsecureSkipVerify

# Requests

Do sends an immutable types.Request snapshot and returns a
types.ResponseView holding the status, headers, full body and duration.
Query parameter values are escaped before sending. A User-Agent is added
unless the request already sets one, and a non-empty Host overrides the
Host header.

When no response is received (connection failure, timeout, body read
error) Do returns a nil view and the error. IsTimeout tells timeouts apart.

# Example Usage

	client, err := executor.NewClient(cfg)
	if err != nil {
		return err
	}

	res, err := executor.Do(ctx, client, env.Request.Snapshot())
	if err != nil {
		return err
	}
	fmt.Printf("Status: %d in %s\n", res.Status, executor.FormatDuration(res.Duration.Milliseconds()))

# Thread Safety

Do is safe to call concurrently with one shared client.
*/
package executor
