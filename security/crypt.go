package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"errors"
	"io"
)

var errShortCiphertext = errors.New("security: aes ciphertext too short")

// objectKey derives the per-object key used by RC4 and AES-128 (Algorithm 1).
func objectKey(fileKey []byte, num, gen int, aesSalt bool) []byte {
	buf := make([]byte, 0, len(fileKey)+9)
	buf = append(buf, fileKey...)
	buf = append(buf, byte(num), byte(num>>8), byte(num>>16), byte(gen), byte(gen>>8))
	if aesSalt {
		buf = append(buf, 's', 'A', 'l', 'T')
	}
	sum := md5.Sum(buf)
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

func rc4Crypt(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesEncrypt prepends a random IV and applies CBC with PKCS#7 padding.
func aesEncrypt(key, data []byte, rnd io.Reader) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	plain := make([]byte, 0, len(data)+padLen)
	plain = append(plain, data...)
	plain = append(plain, bytes.Repeat([]byte{byte(padLen)}, padLen)...)

	out := make([]byte, aes.BlockSize+len(plain))
	if _, err := io.ReadFull(rnd, out[:aes.BlockSize]); err != nil {
		return nil, err
	}
	cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], plain)
	return out, nil
}

func aesDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, errShortCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	if len(body) == 0 {
		return []byte{}, nil
	}
	if len(body)%aes.BlockSize != 0 {
		return nil, errors.New("security: aes ciphertext is not block aligned")
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	padLen := int(out[len(out)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(out) {
		return nil, errors.New("security: invalid aes padding")
	}
	return out[:len(out)-padLen], nil
}

// aesCBCZeroIV encrypts or decrypts block-aligned data without padding, as
// used for the UE, OE and key-wrapping steps of revision 6.
func aesCBCZeroIV(key, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("security: data is not block aligned")
	}
	iv := make([]byte, aes.BlockSize)
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}
