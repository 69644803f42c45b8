package archive

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz/lzma"
	"golang.org/x/text/encoding/unicode"

	"github.com/RhyVis/meta-manager/pkg/log"
	"github.com/RhyVis/meta-manager/pkg/types"
)

// 7z property ids
const (
	szEnd              = 0x00
	szHeader           = 0x01
	szMainStreamsInfo  = 0x04
	szFilesInfo        = 0x05
	szPackInfo         = 0x06
	szUnpackInfo       = 0x07
	szSubStreamsInfo   = 0x08
	szSize             = 0x09
	szCRC              = 0x0A
	szFolderID         = 0x0B
	szCodersUnpackSize = 0x0C
	szNumUnpackStream  = 0x0D
	szEmptyStream      = 0x0E
	szEmptyFile        = 0x0F
	szName             = 0x11
	szMTime            = 0x14
	szWinAttributes    = 0x15
)

const (
	signatureHeaderSize = 32

	// aesCyclesPower is the log2 of SHA-256 rounds used for the 7zAES key
	aesCyclesPower = 19

	attrDirectory     = 0x10
	attrUnixExtension = 0x8000
	unixModeDir       = 0o040000
	unixModeRegular   = 0o100000

	// windowsEpochOffset is 1601-01-01 to 1970-01-01 in 100ns ticks
	windowsEpochOffset = 116444736000000000
)

var (
	sevenZipSignature = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}

	coderCopy  = []byte{0x00}
	coderLZMA2 = []byte{0x21}
	coderAES   = []byte{0x06, 0xF1, 0x07, 0x01}

	// dictionary capacity per compression level; level 0 stores
	levelDictCaps = [...]int{0, 1 << 16, 1 << 20, 1 << 22, 1 << 22, 1 << 23, 1 << 24, 1 << 24, 1 << 25, 1 << 25}
)

type szEntry struct {
	name    string
	path    string
	dir     bool
	size    uint64
	mode    fs.FileMode
	modTime time.Time
	crc     uint32

	// stream is fixed at collection time so the header stays consistent
	// with what was packed even if a file shrinks while being read
	stream bool
}

func (e szEntry) hasStream() bool {
	return e.stream
}

type szCoder struct {
	id    []byte
	props []byte
}

type szFolder struct {
	coders      []szCoder
	bindPairs   [][2]uint64
	unpackSizes []uint64
	packSize    uint64
}

// WriteSevenZip packs the contents of srcDir into a single solid 7z folder.
// Level 0 stores, higher levels use LZMA2. A password adds a 7zAES coder
// over the packed stream; file names stay readable.
func WriteSevenZip(srcDir, destArchive, password string, level int) (err error) {
	logger := log.WithComponent("archive")

	entries, err := collectEntries(srcDir)
	if err != nil {
		return err
	}

	f, err := os.Create(destArchive)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", types.ErrFilesystem, destArchive, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: closing %s: %v", types.ErrFilesystem, destArchive, cerr)
		}
		if err != nil {
			os.Remove(destArchive)
		}
	}()

	if _, err := f.Write(make([]byte, signatureHeaderSize)); err != nil {
		return fmt.Errorf("%w: %v", types.ErrFilesystem, err)
	}

	var folder *szFolder
	for _, e := range entries {
		if e.hasStream() {
			folder, err = writePackedStream(f, entries, password, level)
			if err != nil {
				return err
			}
			break
		}
	}

	header, err := buildHeader(entries, folder)
	if err != nil {
		return err
	}
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("%w: writing header: %v", types.ErrFilesystem, err)
	}

	var packSize uint64
	if folder != nil {
		packSize = folder.packSize
	}
	if _, err := f.WriteAt(signatureHeader(packSize, header), 0); err != nil {
		return fmt.Errorf("%w: writing signature header: %v", types.ErrFilesystem, err)
	}

	logger.Debug().
		Int("entries", len(entries)).
		Uint64("packed", packSize).
		Str("archive", destArchive).
		Msg("Wrote 7z archive")
	return nil
}

func collectEntries(srcDir string) ([]szEntry, error) {
	var entries []szEntry
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("%w: walking %s: %v", types.ErrFilesystem, path, walkErr)
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrFilesystem, err)
		}
		if rel == "." {
			return nil
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			// links and devices are not stored
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("%w: stat %s: %v", types.ErrFilesystem, path, err)
		}
		e := szEntry{
			name:    filepath.ToSlash(rel),
			path:    path,
			dir:     d.IsDir(),
			mode:    info.Mode(),
			modTime: info.ModTime(),
		}
		if !e.dir {
			e.size = uint64(info.Size())
			e.stream = e.size > 0
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// writePackedStream compresses every non-empty file, in order, into one
// packed stream and records per-file sizes and CRCs.
func writePackedStream(w io.Writer, entries []szEntry, password string, level int) (*szFolder, error) {
	packed := &countingWriter{w: w}

	var (
		sink   io.Writer = packed
		cbc    *cbcWriter
		aesCdr *szCoder
	)
	if password != "" {
		key, iv, props, err := newAESKey(password)
		if err != nil {
			return nil, err
		}
		cbc, err = newCBCWriter(packed, key, iv)
		if err != nil {
			return nil, err
		}
		sink = cbc
		aesCdr = &szCoder{id: coderAES, props: props}
	}

	coded := &countingWriter{w: sink}
	var (
		compressor io.WriteCloser
		mainCoder  szCoder
	)
	if level <= 0 {
		compressor = nopWriteCloser{coded}
		mainCoder = szCoder{id: coderCopy}
	} else {
		dictCap := levelDictCaps[min(level, MaxLevel)]
		lw, err := lzma.Writer2Config{DictCap: dictCap}.NewWriter2(coded)
		if err != nil {
			return nil, fmt.Errorf("%w: lzma2 writer: %v", types.ErrFilesystem, err)
		}
		compressor = lw
		mainCoder = szCoder{id: coderLZMA2, props: []byte{lzma2DictProp(dictCap)}}
	}

	var total uint64
	for i := range entries {
		if !entries[i].hasStream() {
			continue
		}
		n, crc, err := copyWithCRC(compressor, entries[i].path)
		if err != nil {
			return nil, err
		}
		entries[i].size = n
		entries[i].crc = crc
		total += n
	}

	if err := compressor.Close(); err != nil {
		return nil, fmt.Errorf("%w: finishing compression: %v", types.ErrFilesystem, err)
	}
	if cbc != nil {
		if err := cbc.Close(); err != nil {
			return nil, fmt.Errorf("%w: finishing encryption: %v", types.ErrFilesystem, err)
		}
	}

	folder := &szFolder{
		coders:      []szCoder{mainCoder},
		unpackSizes: []uint64{total},
		packSize:    packed.n,
	}
	if aesCdr != nil {
		// coders are resolved in order: AES reads the packed stream and
		// the main coder reads the decrypted output
		folder.coders = []szCoder{*aesCdr, mainCoder}
		folder.bindPairs = [][2]uint64{{1, 0}}
		folder.unpackSizes = []uint64{coded.n, total}
	}
	return folder, nil
}

func copyWithCRC(w io.Writer, path string) (uint64, uint32, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: opening %s: %v", types.ErrFilesystem, path, err)
	}
	defer in.Close()

	h := crc32.NewIEEE()
	n, err := io.Copy(io.MultiWriter(w, h), in)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: packing %s: %v", types.ErrFilesystem, path, err)
	}
	return uint64(n), h.Sum32(), nil
}

func buildHeader(entries []szEntry, folder *szFolder) ([]byte, error) {
	h := &headerWriter{}
	h.writeByte(szHeader)

	if folder != nil {
		var streams []szEntry
		for _, e := range entries {
			if e.hasStream() {
				streams = append(streams, e)
			}
		}
		h.writeByte(szMainStreamsInfo)
		h.packInfo(folder.packSize)
		h.unpackInfo(folder)
		h.subStreamsInfo(streams)
		h.writeByte(szEnd)
	}

	if len(entries) > 0 {
		if err := h.filesInfo(entries); err != nil {
			return nil, err
		}
	}

	h.writeByte(szEnd)
	return h.buf.Bytes(), nil
}

func signatureHeader(nextHeaderOffset uint64, header []byte) []byte {
	start := make([]byte, 0, 20)
	start = binary.LittleEndian.AppendUint64(start, nextHeaderOffset)
	start = binary.LittleEndian.AppendUint64(start, uint64(len(header)))
	start = binary.LittleEndian.AppendUint32(start, crc32.ChecksumIEEE(header))

	out := make([]byte, 0, signatureHeaderSize)
	out = append(out, sevenZipSignature...)
	out = append(out, 0, 4)
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(start))
	return append(out, start...)
}

type headerWriter struct {
	buf bytes.Buffer
}

func (h *headerWriter) writeByte(b byte) { h.buf.WriteByte(b) }

func (h *headerWriter) write(b []byte) { h.buf.Write(b) }

// number writes the 7z variable-length integer encoding
func (h *headerWriter) number(v uint64) {
	var first byte
	mask := byte(0x80)
	i := 0
	for ; i < 8; i++ {
		if v < uint64(1)<<(7*(i+1)) {
			first |= byte(v >> (8 * i))
			break
		}
		first |= mask
		mask >>= 1
	}
	h.writeByte(first)
	for ; i > 0; i-- {
		h.writeByte(byte(v))
		v >>= 8
	}
}

func (h *headerWriter) property(id byte, data []byte) {
	h.writeByte(id)
	h.number(uint64(len(data)))
	h.write(data)
}

func (h *headerWriter) packInfo(packSize uint64) {
	h.writeByte(szPackInfo)
	h.number(0)
	h.number(1)
	h.writeByte(szSize)
	h.number(packSize)
	h.writeByte(szEnd)
}

func (h *headerWriter) unpackInfo(folder *szFolder) {
	h.writeByte(szUnpackInfo)
	h.writeByte(szFolderID)
	h.number(1)
	h.writeByte(0)

	h.number(uint64(len(folder.coders)))
	for _, c := range folder.coders {
		flag := byte(len(c.id))
		if len(c.props) > 0 {
			flag |= 0x20
		}
		h.writeByte(flag)
		h.write(c.id)
		if len(c.props) > 0 {
			h.number(uint64(len(c.props)))
			h.write(c.props)
		}
	}
	for _, bp := range folder.bindPairs {
		h.number(bp[0])
		h.number(bp[1])
	}

	h.writeByte(szCodersUnpackSize)
	for _, size := range folder.unpackSizes {
		h.number(size)
	}
	h.writeByte(szEnd)
}

func (h *headerWriter) subStreamsInfo(streams []szEntry) {
	h.writeByte(szSubStreamsInfo)
	h.writeByte(szNumUnpackStream)
	h.number(uint64(len(streams)))
	if len(streams) > 1 {
		h.writeByte(szSize)
		for _, s := range streams[:len(streams)-1] {
			h.number(s.size)
		}
	}
	h.writeByte(szCRC)
	h.writeByte(1)
	for _, s := range streams {
		h.write(binary.LittleEndian.AppendUint32(nil, s.crc))
	}
	h.writeByte(szEnd)
}

func (h *headerWriter) filesInfo(entries []szEntry) error {
	h.writeByte(szFilesInfo)
	h.number(uint64(len(entries)))

	emptyStream := make([]bool, len(entries))
	var emptyFile []bool
	anyEmpty, anyEmptyFile := false, false
	for i, e := range entries {
		if e.hasStream() {
			continue
		}
		emptyStream[i] = true
		anyEmpty = true
		emptyFile = append(emptyFile, !e.dir)
		if !e.dir {
			anyEmptyFile = true
		}
	}
	if anyEmpty {
		h.property(szEmptyStream, bitVector(emptyStream))
	}
	if anyEmptyFile {
		h.property(szEmptyFile, bitVector(emptyFile))
	}

	names := []byte{0}
	for _, e := range entries {
		encoded, err := utf16le(e.name)
		if err != nil {
			return err
		}
		names = append(names, encoded...)
		names = append(names, 0, 0)
	}
	h.property(szName, names)

	mtimes := []byte{1, 0}
	attrs := []byte{1, 0}
	for _, e := range entries {
		mtimes = binary.LittleEndian.AppendUint64(mtimes, fileTime(e.modTime))
		attrs = binary.LittleEndian.AppendUint32(attrs, attributes(e))
	}
	h.property(szMTime, mtimes)
	h.property(szWinAttributes, attrs)

	h.writeByte(szEnd)
	return nil
}

func bitVector(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, set := range bits {
		if set {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

func fileTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100 + windowsEpochOffset)
}

func attributes(e szEntry) uint32 {
	unixMode := uint32(e.mode.Perm())
	attr := uint32(attrUnixExtension)
	if e.dir {
		attr |= attrDirectory
		unixMode |= unixModeDir
	} else {
		unixMode |= unixModeRegular
	}
	return attr | unixMode<<16
}

func utf16le(s string) ([]byte, error) {
	b, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: encoding name %q: %v", types.ErrFilesystem, s, err)
	}
	return b, nil
}

// lzma2DictProp returns the smallest LZMA2 dictionary property covering dictCap
func lzma2DictProp(dictCap int) byte {
	for p := 0; p < 40; p++ {
		if uint64(dictCap) <= uint64(2|p&1)<<(p/2+11) {
			return byte(p)
		}
	}
	return 40
}

// newAESKey derives the 7zAES key: SHA-256 over (password, counter) repeated
// 2^aesCyclesPower times with no salt.
func newAESKey(password string) (key, iv, props []byte, err error) {
	pass, err := utf16le(password)
	if err != nil {
		return nil, nil, nil, err
	}

	iv = make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: generating iv: %v", types.ErrFilesystem, err)
	}

	h := sha256.New()
	var counter [8]byte
	for round := uint64(0); round < 1<<aesCyclesPower; round++ {
		h.Write(pass)
		h.Write(counter[:])
		binary.LittleEndian.PutUint64(counter[:], round+1)
	}
	key = h.Sum(nil)

	// byte 0: cycles power, 0x40 = IV present; byte 1 low nibble: IV size - 1
	props = append([]byte{aesCyclesPower | 0x40, byte(aes.BlockSize - 1)}, iv...)
	return key, iv, props, nil
}

// cbcWriter encrypts with AES-CBC, zero-padding the final block on Close
type cbcWriter struct {
	w    io.Writer
	mode cipher.BlockMode
	buf  []byte
}

func newCBCWriter(w io.Writer, key, iv []byte) (*cbcWriter, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes: %v", types.ErrFilesystem, err)
	}
	return &cbcWriter{w: w, mode: cipher.NewCBCEncrypter(block, iv)}, nil
}

func (c *cbcWriter) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	n := len(c.buf) / aes.BlockSize * aes.BlockSize
	if n == 0 {
		return len(p), nil
	}
	out := make([]byte, n)
	c.mode.CryptBlocks(out, c.buf[:n])
	if _, err := c.w.Write(out); err != nil {
		return 0, err
	}
	c.buf = append(c.buf[:0], c.buf[n:]...)
	return len(p), nil
}

func (c *cbcWriter) Close() error {
	if len(c.buf) == 0 {
		return nil
	}
	block := make([]byte, aes.BlockSize)
	copy(block, c.buf)
	c.mode.CryptBlocks(block, block)
	c.buf = nil
	_, err := c.w.Write(block)
	return err
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
