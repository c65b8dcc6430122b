package htlcscript

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

func genTestKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		t.Fatalf("unable to generate key: %v", err)
	}
	return priv.PubKey()
}

// TestGenScriptExtractsCorrectHashlock asserts that the hashlock pushed into
// the generated script round-trips through a disassembled script.
func TestGenScriptExtractsCorrectHashlock(t *testing.T) {
	t.Parallel()

	receiver := genTestKey(t)
	sender := genTestKey(t)

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("unable to generate secret: %v", err)
	}
	hashlock, err := Hashlock(secret)
	if err != nil {
		t.Fatalf("unable to hash secret: %v", err)
	}

	script, err := GenScript(Params{
		ReceiverPubKey: receiver.SerializeCompressed(),
		SenderPubKey:   sender.SerializeCompressed(),
		Hashlock:       hashlock,
		Timelock:       1700000000,
	})
	if err != nil {
		t.Fatalf("unable to generate script: %v", err)
	}

	tokenizer := txscript.MakeScriptTokenizer(0, script)
	var found bool
	for tokenizer.Next() {
		if tokenizer.Opcode() == txscript.OP_SHA256 {
			found = true
			continue
		}
		if found {
			if !bytes.Equal(tokenizer.Data(), hashlock) {
				t.Fatalf("hashlock mismatch: got %x, want %x",
					tokenizer.Data(), hashlock)
			}
			return
		}
	}
	t.Fatalf("hashlock not found in generated script")
}

// TestValidateHashlock exercises §8.1's claim-succeeds-iff-hash-matches
// property for arbitrary preimages.
func TestValidateHashlock(t *testing.T) {
	t.Parallel()

	secret := bytes.Repeat([]byte{0x07}, 32)
	hashlock := sha256.Sum256(secret)

	if err := ValidateHashlock(secret, hashlock[:]); err != nil {
		t.Fatalf("matching preimage rejected: %v", err)
	}

	wrongSecret := bytes.Repeat([]byte{0x08}, 32)
	if err := ValidateHashlock(wrongSecret, hashlock[:]); err == nil {
		t.Fatalf("non-matching preimage accepted")
	}
}

func TestP2WSHAddressDeterministic(t *testing.T) {
	t.Parallel()

	script := []byte{0x01, 0x02, 0x03}
	addr1, err := P2WSHAddress(script, &chaincfg.TestNet3Params)
	if err != nil {
		t.Fatalf("unable to derive address: %v", err)
	}
	addr2, err := P2WSHAddress(script, &chaincfg.TestNet3Params)
	if err != nil {
		t.Fatalf("unable to derive address: %v", err)
	}
	if addr1.String() != addr2.String() {
		t.Fatalf("address derivation is not deterministic")
	}
}

func TestWitnessInputSizeClaimLargerThanRefund(t *testing.T) {
	t.Parallel()

	if WitnessInputSize(true) <= WitnessInputSize(false) {
		t.Fatalf("claim witness should be larger than refund witness " +
			"due to the carried preimage")
	}
}
