package archive

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rarMember is one entry of a RAR 4 fixture. Data is always stored.
type rarMember struct {
	name string
	data string
	dir  bool
}

const (
	rarBlockArchive = 0x73
	rarBlockFile    = 0x74
	rarBlockEnd     = 0x7b

	rarFlagLongBlock = 0x8000
	rarFlagEncrypted = 0x0004
	rarFlagDirectory = 0x00e0
	rarFlagSalt      = 0x0400

	rarHostWin32    = 2
	rarMethodStore  = 0x30
	rarKeyRounds    = 0x40000
	rarDosTime2024  = 0x58a50000
	rarUnpackVer29  = 29
	rarAttrDir      = 0x10
	rarAttrArchived = 0x20
)

func rarBlock(htype byte, flags uint16, body []byte) []byte {
	rest := []byte{htype}
	rest = binary.LittleEndian.AppendUint16(rest, flags)
	rest = binary.LittleEndian.AppendUint16(rest, uint16(7+len(body)))
	rest = append(rest, body...)

	out := binary.LittleEndian.AppendUint16(nil, uint16(crc32.ChecksumIEEE(rest)))
	return append(out, rest...)
}

// rarKeys derives the RAR 3 AES-128 key and IV for password and salt
func rarKeys(password string, salt []byte) (key, iv []byte) {
	var input []byte
	for _, c := range utf16.Encode([]rune(password)) {
		input = append(input, byte(c), byte(c>>8))
	}
	input = append(input, salt...)

	h := sha1.New()
	iv = make([]byte, aes.BlockSize)
	for i := 0; i < rarKeyRounds; i++ {
		h.Write(input)
		h.Write([]byte{byte(i), byte(i >> 8), byte(i >> 16)})
		if i%(rarKeyRounds/16) == 0 {
			iv[i/(rarKeyRounds/16)] = h.Sum(nil)[19]
		}
	}
	key = h.Sum(nil)[:16]
	for k := key; len(k) >= 4; k = k[4:] {
		k[0], k[1], k[2], k[3] = k[3], k[2], k[1], k[0]
	}
	return key, iv
}

func rarFileBlock(t *testing.T, m rarMember, password string) []byte {
	t.Helper()

	plain := []byte(m.data)
	packed := plain
	flags := uint16(rarFlagLongBlock)
	attr := uint32(rarAttrArchived)
	if m.dir {
		flags |= rarFlagDirectory
		attr = rarAttrDir
	}

	var salt []byte
	if password != "" && !m.dir {
		flags |= rarFlagEncrypted | rarFlagSalt
		salt = []byte("saltsalt")
		key, iv := rarKeys(password, salt)
		block, err := aes.NewCipher(key)
		require.NoError(t, err)

		padded := make([]byte, (len(plain)+aes.BlockSize-1)/aes.BlockSize*aes.BlockSize)
		copy(padded, plain)
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(padded, padded)
		packed = padded
	}

	name := []byte(strings.ReplaceAll(m.name, "/", `\`))
	body := binary.LittleEndian.AppendUint32(nil, uint32(len(packed)))
	body = binary.LittleEndian.AppendUint32(body, uint32(len(plain)))
	body = append(body, rarHostWin32)
	body = binary.LittleEndian.AppendUint32(body, crc32.ChecksumIEEE(plain))
	body = binary.LittleEndian.AppendUint32(body, rarDosTime2024)
	body = append(body, rarUnpackVer29, rarMethodStore)
	body = binary.LittleEndian.AppendUint16(body, uint16(len(name)))
	body = binary.LittleEndian.AppendUint32(body, attr)
	body = append(body, name...)
	body = append(body, salt...)

	return append(rarBlock(rarBlockFile, flags, body), packed...)
}

func writeRar(t *testing.T, members []rarMember, password string) string {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("Rar!\x1a\x07\x00")
	buf.Write(rarBlock(rarBlockArchive, 0, make([]byte, 6)))
	for _, m := range members {
		buf.Write(rarFileBlock(t, m, password))
	}
	buf.Write(rarBlock(rarBlockEnd, 0, nil))

	path := filepath.Join(t.TempDir(), "fixture.rar")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

var rarFixture = []rarMember{
	{name: "data", dir: true},
	{name: "data/level1.pak", data: strings.Repeat("abcdefgh", 64)},
	{name: "saves", dir: true},
	{name: "readme.txt", data: "hello rar"},
}

func TestDecompressRar(t *testing.T) {
	archivePath := writeRar(t, rarFixture, "")

	dest := t.TempDir()
	require.NoError(t, newTestRegistry().Decompress(archivePath, dest, ""))

	assertTree(t, dest, map[string]string{
		"data/":           "",
		"data/level1.pak": strings.Repeat("abcdefgh", 64),
		"saves/":          "",
		"readme.txt":      "hello rar",
	})
}

func TestDecompressEncryptedRar(t *testing.T) {
	archivePath := writeRar(t, rarFixture, "s3cret")

	t.Run("right password", func(t *testing.T) {
		dest := t.TempDir()
		require.NoError(t, newTestRegistry().Decompress(archivePath, dest, "s3cret"))
		assertTree(t, dest, map[string]string{
			"data/level1.pak": strings.Repeat("abcdefgh", 64),
			"readme.txt":      "hello rar",
		})
	})

	t.Run("wrong password", func(t *testing.T) {
		err := newTestRegistry().Decompress(archivePath, t.TempDir(), "nope")
		assert.Error(t, err)
	})

	t.Run("missing password", func(t *testing.T) {
		err := newTestRegistry().Decompress(archivePath, t.TempDir(), "")
		assert.Error(t, err)
	})
}

func TestDecompressRarRejectsEscapingNames(t *testing.T) {
	archivePath := writeRar(t, []rarMember{{name: "../escape.txt", data: "x"}}, "")

	parent := t.TempDir()
	dest := filepath.Join(parent, "dest")
	require.NoError(t, os.Mkdir(dest, 0755))

	err := newTestRegistry().Decompress(archivePath, dest, "")
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(parent, "escape.txt"))
}
