/*
Package types defines the data shared between hooks and the load engine.

# Overview

  - RequestContext: the per-worker mutable request (method, URL, host, headers, body)
  - Header: single-valued, case-insensitive header map
  - Request: immutable snapshot of a RequestContext used by the network phase
  - ResponseView: read-only response handed to the after-response hook
  - RunConfig / RequestConfig: static configuration read at run start
  - TLSConfig: client certificate, CA and verification settings

# Ownership

A RequestContext belongs to exactly one worker. The engine only reads it between
hook invocations, through Snapshot, so the network layer never sees a partially
applied mutation.

A ResponseView is built once per completed response and must not be retained
after the hook returns.
*/
package types
