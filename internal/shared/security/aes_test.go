package security

import (
	"bytes"
	"errors"
	"testing"
)

func TestAesCBC_加解密(t *testing.T) {
	key := []byte("0123456789abcdef")
	plain := []byte(`{"kind":"battle_report_created"}`)
	enc, err := AesCBCEncrypt(plain, key)
	if err != nil {
		t.Fatalf("encrypt err=%v", err)
	}
	if bytes.Equal(enc, plain) {
		t.Fatalf("期望密文与明文不同")
	}
	dec, err := AesCBCDecrypt(enc, key)
	if err != nil || !bytes.Equal(dec, plain) {
		t.Fatalf("期望解密还原，got=%q err=%v", dec, err)
	}
}

func TestAesCBC_密钥长度校验(t *testing.T) {
	if _, err := AesCBCEncrypt([]byte("x"), []byte("short")); !errors.Is(err, ErrAESKeySize) {
		t.Fatalf("期望 ErrAESKeySize，got=%v", err)
	}
}
