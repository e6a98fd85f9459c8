// Package vapid handles the server's VAPID identity: decoding the URL-safe
// base64 public key into the raw bytes a push manager expects, validating
// configured keys and generating fresh key pairs.
package vapid
