package ledgercrypt_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ai8future/ledgercrypt"
)

func Example() {
	ctx := context.Background()

	// A 32-byte master key (in production, use a KeyStore)
	keys, err := ledgercrypt.NewStaticKeyProvider([]byte("01234567890123456789012345678901"))
	if err != nil {
		panic(err)
	}
	cipher, err := ledgercrypt.New(keys)
	if err != nil {
		panic(err)
	}

	// Encrypt
	env, err := cipher.Encrypt(ctx, "Hello, World!")
	if err != nil {
		panic(err)
	}

	// Decrypt
	plaintext, err := cipher.Decrypt(ctx, env)
	if err != nil {
		panic(err)
	}

	fmt.Println(plaintext)
	// Output: Hello, World!
}

func Example_legacyFallback() {
	ctx := context.Background()
	keys, _ := ledgercrypt.NewStaticKeyProvider([]byte("01234567890123456789012345678901"))
	cipher, _ := ledgercrypt.New(keys)

	stored, _ := cipher.SealString(ctx, "new note")

	for _, value := range []string{stored, "old note"} {
		plaintext, state, _ := cipher.Open(ctx, value)
		fmt.Println(state, plaintext)
	}

	// Output:
	// encrypted new note
	// legacy old note
}

func Example_keyStore() {
	ctx := context.Background()
	dir, _ := os.MkdirTemp("", "ledgercrypt-example")
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, ledgercrypt.DefaultKeyFileName)

	// First process: key generated and persisted
	keys := ledgercrypt.NewKeyStore(path)
	cipher, _ := ledgercrypt.New(keys)
	stored, _ := cipher.SealString(ctx, "survives restarts")
	keys.Close()

	// Next process: same key file
	keys = ledgercrypt.NewKeyStore(path)
	defer keys.Close()
	cipher, _ = ledgercrypt.New(keys)
	plaintext, _ := cipher.OpenString(ctx, stored)
	fmt.Println(plaintext)

	// Regeneration is destructive
	_, _ = keys.RegenerateKey(ctx)
	_, err := cipher.OpenString(ctx, stored)
	fmt.Println(err)

	// Output:
	// survives restarts
	// ledgercrypt: decryption failed
}
