package middleware

import (
	"net/http"
)

// MaxBodySize caps request bodies. Serialized Solana transactions are under
// 1232 bytes before base64, so 64KB leaves generous headroom.
const MaxBodySize = 64 << 10

// LimitBody limits the size of request bodies to prevent DoS attacks
func LimitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
		next.ServeHTTP(w, r)
	})
}
