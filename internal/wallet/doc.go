// Package wallet implements the wallet-balance oracle:
// a single read-through function from wallet address to balance, fronted
// by a bounded TTL cache so a failing external lookup never fails a
// persistent-link tier decision. A cache miss still waits for the oracle
// call to return.
package wallet
