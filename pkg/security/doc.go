// Package security implements the credential store: AES-256-GCM
// encryption of per-host connection material (TLS PEM blocks, SSH keys
// and passwords) with the nonce prepended to each ciphertext. Decrypted
// bytes flow only to the transport dialer; decryption failures report no
// key or data material in their messages.
package security
