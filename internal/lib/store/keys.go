package store

import (
	"bytes"
)

// Key layout. Account and token keys are prefix + identity.
var (
	keyPool      = []byte("pool")
	prefixAcct   = []byte("acct/")
	prefixToken  = []byte("token/")
	keySchemaVer = []byte("schema")
)

const schemaVersion = "1"

func accountKey(id string) []byte {
	return bytes.Join([][]byte{prefixAcct, []byte(id)}, nil)
}

func tokenKey(symbol string) []byte {
	return bytes.Join([][]byte{prefixToken, []byte(symbol)}, nil)
}
