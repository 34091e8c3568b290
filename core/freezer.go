package core

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
)

// MaxDataFileSize is the rollover threshold for a freezer data file.
const MaxDataFileSize int64 = 2 * 1024 * 1024 * 1024

// ErrNotFound is returned for any freezer lookup past the populated range
// of a column; it is never returned for a corrupt record.
var ErrNotFound = errors.New("freezer: not found")

const (
	colHeaders      = "headers"
	colTransactions = "transactions"
	colReceipts     = "receipts"
)

// Freezer is the append-only on-disk store for finalized chain data and
// peer records. It caches no records in memory; every read and write
// goes to the files under basePath. It does hold one lock per chain
// column, which serializes that column's appends and reads within one
// Freezer value.
type Freezer struct {
	basePath    string
	maxFileSize int64

	mu      sync.Mutex
	columns map[string]*freezerColumn
}

// NewFreezer opens (creating directories lazily) a freezer rooted at
// basePath.
func NewFreezer(basePath string) *Freezer {
	return &Freezer{basePath: basePath, maxFileSize: MaxDataFileSize, columns: map[string]*freezerColumn{}}
}

// newFreezerForTesting allows tests to force small rollover thresholds
// without writing gigabytes of data.
func newFreezerForTesting(basePath string, maxFileSize int64) *Freezer {
	return &Freezer{basePath: basePath, maxFileSize: maxFileSize, columns: map[string]*freezerColumn{}}
}

func (f *Freezer) column(name string) *freezerColumn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.columns[name]; ok {
		return c
	}
	c := &freezerColumn{
		name:        name,
		dataDir:     filepath.Join(f.basePath, "chain", "data", name),
		indexPath:   filepath.Join(f.basePath, "chain", "indexes", name+".cidx"),
		maxFileSize: f.maxFileSize,
	}
	f.columns[name] = c
	return c
}

// StoreBlock appends the header, transactions, and receipts of block to
// their respective columns as one logical commit: one append per
// column, in header/transactions/receipts order.
func (f *Freezer) StoreBlock(block *Block, receipts []*Receipt) error {
	headerBytes, err := rlp.EncodeToBytes(block.Header.rlpView())
	if err != nil {
		return fmt.Errorf("freezer: encode header: %w", err)
	}
	if err := f.column(colHeaders).append(headerBytes); err != nil {
		return fmt.Errorf("freezer: store header: %w", err)
	}
	txBytes, err := rlp.EncodeToBytes(signedTxsToRLP(block.Transactions))
	if err != nil {
		return fmt.Errorf("freezer: encode transactions: %w", err)
	}
	if err := f.column(colTransactions).append(txBytes); err != nil {
		return fmt.Errorf("freezer: store transactions: %w", err)
	}
	recBytes, err := rlp.EncodeToBytes(receiptsToRLP(receipts))
	if err != nil {
		return fmt.Errorf("freezer: encode receipts: %w", err)
	}
	if err := f.column(colReceipts).append(recBytes); err != nil {
		return fmt.Errorf("freezer: store receipts: %w", err)
	}
	return nil
}

// GetBlockHeaderByNumber returns the n-th stored header (0-indexed, in
// storage order — callers arrange for that order to match block number).
func (f *Freezer) GetBlockHeaderByNumber(n uint64) (*Header, error) {
	raw, err := f.column(colHeaders).get(n)
	if err != nil {
		return nil, err
	}
	var hv headerRLP
	if err := rlp.DecodeBytes(raw, &hv); err != nil {
		return nil, fmt.Errorf("freezer: decode header: %w", err)
	}
	return &Header{
		ParentHash: hv.ParentHash, Coinbase: hv.Coinbase, StateRoot: hv.StateRoot,
		TxRoot: hv.TxRoot, ReceiptRoot: hv.ReceiptRoot, Bloom: hv.Bloom,
		Number: hv.Number, GasUsed: hv.GasUsed, Timestamp: hv.Timestamp, ExtraData: hv.ExtraData,
		Epoch: hv.Epoch, Slot: hv.Slot, EpochBlockNumber: hv.EpochBlockNumber,
		SlotSize: hv.SlotSize, EpochSize: hv.EpochSize,
	}, nil
}

// GetTransactionsByNumber returns the n-th stored transaction list.
func (f *Freezer) GetTransactionsByNumber(n uint64) ([]*SignedTransaction, error) {
	raw, err := f.column(colTransactions).get(n)
	if err != nil {
		return nil, err
	}
	var rlpTxs []signedTxRLP
	if err := rlp.DecodeBytes(raw, &rlpTxs); err != nil {
		return nil, fmt.Errorf("freezer: decode transactions: %w", err)
	}
	return signedTxsFromRLP(rlpTxs), nil
}

// GetReceiptsByNumber returns the n-th stored receipt list.
func (f *Freezer) GetReceiptsByNumber(n uint64) ([]*Receipt, error) {
	raw, err := f.column(colReceipts).get(n)
	if err != nil {
		return nil, err
	}
	var rlpRecs []receiptRLP
	if err := rlp.DecodeBytes(raw, &rlpRecs); err != nil {
		return nil, fmt.Errorf("freezer: decode receipts: %w", err)
	}
	return receiptsFromRLP(rlpRecs), nil
}

// ---------------------------------------------------------------------
// Peers column: JSON, keyed by address, scanned newest-file-first.
// ---------------------------------------------------------------------

type peersColumn struct {
	mu          sync.Mutex
	dataDir     string
	maxFileSize int64
}

func (f *Freezer) peers() *peersColumn {
	return &peersColumn{dataDir: filepath.Join(f.basePath, "peers", "data"), maxFileSize: f.maxFileSize}
}

type peerRecord struct {
	Key  PeerKey `json:"key"`
	Peer Peer    `json:"peer"`
}

// StorePeer appends peer's current record to the peers column.
func (f *Freezer) StorePeer(p *Peer) error {
	pc := f.peers()
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := os.MkdirAll(pc.dataDir, 0o755); err != nil {
		return fmt.Errorf("freezer: mkdir peers: %w", err)
	}
	rec, err := json.Marshal(peerRecord{Key: p.Key(), Peer: *p})
	if err != nil {
		return fmt.Errorf("freezer: marshal peer: %w", err)
	}
	num, err := pc.currentFileNumber()
	if err != nil {
		return err
	}
	path := pc.filePath(num)
	if st, err := os.Stat(path); err == nil && st.Size()+int64(len(rec))+1 > pc.maxFileSize {
		num++
	}
	fh, err := os.OpenFile(pc.filePath(num), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("freezer: open peers file: %w", err)
	}
	defer fh.Close()
	if _, err := fh.Write(append(rec, '\n')); err != nil {
		return fmt.Errorf("freezer: write peer record: %w", err)
	}
	return nil
}

// GetPeer returns the most recently stored record for key, if any.
func (f *Freezer) GetPeer(key PeerKey) (*Peer, error) {
	pc := f.peers()
	pc.mu.Lock()
	defer pc.mu.Unlock()
	nums, err := pc.fileNumbers()
	if err != nil {
		return nil, err
	}
	for i := len(nums) - 1; i >= 0; i-- {
		fh, err := os.Open(pc.filePath(nums[i]))
		if err != nil {
			continue
		}
		var lines []string
		sc := bufio.NewScanner(fh)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		fh.Close()
		for j := len(lines) - 1; j >= 0; j-- {
			var rec peerRecord
			if err := json.Unmarshal([]byte(lines[j]), &rec); err != nil {
				continue
			}
			if rec.Key == key {
				p := rec.Peer
				return &p, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (pc *peersColumn) filePath(n int) string {
	return filepath.Join(pc.dataDir, fmt.Sprintf("peers.%04d.json", n))
}

func (pc *peersColumn) fileNumbers() ([]int, error) {
	entries, err := os.ReadDir(pc.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("freezer: read peers dir: %w", err)
	}
	var nums []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "peers.") || !strings.HasSuffix(name, ".json") {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(name, "peers.%04d.json", &n); err == nil {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	return nums, nil
}

func (pc *peersColumn) currentFileNumber() (int, error) {
	nums, err := pc.fileNumbers()
	if err != nil {
		return 0, err
	}
	if len(nums) == 0 {
		return 0, nil
	}
	return nums[len(nums)-1], nil
}

// ---------------------------------------------------------------------
// Generic chain column: snappy(rlp(record)) with a fixed-width index.
// ---------------------------------------------------------------------

const indexRowSize = 6

type freezerColumn struct {
	mu          sync.Mutex
	name        string
	dataDir     string
	indexPath   string
	maxFileSize int64
}

func (c *freezerColumn) dataFilePath(n uint16) string {
	return filepath.Join(c.dataDir, fmt.Sprintf("%s.%04d.cdat", c.name, n))
}

// append compresses raw and writes it to the column's current data file,
// rolling to a new file when it would exceed maxFileSize, then appends
// the index row *after* the data write so a crash mid-write never
// produces a torn record.
func (c *freezerColumn) append(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.indexPath), 0o755); err != nil {
		return fmt.Errorf("mkdir index dir: %w", err)
	}
	compressed := snappy.Encode(nil, raw)

	fileNum, err := c.lastFileNumber()
	if err != nil {
		return err
	}
	curSize, err := fileSize(c.dataFilePath(fileNum))
	if err != nil {
		return err
	}
	if curSize > 0 && curSize+int64(len(compressed)) > c.maxFileSize {
		fileNum++
		curSize = 0
	}

	fh, err := os.OpenFile(c.dataFilePath(fileNum), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}
	if _, err := fh.Write(compressed); err != nil {
		fh.Close()
		return fmt.Errorf("write record: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("close data file: %w", err)
	}

	row := make([]byte, indexRowSize)
	binary.BigEndian.PutUint16(row[0:2], fileNum)
	binary.BigEndian.PutUint32(row[2:6], uint32(curSize))
	idx, err := os.OpenFile(c.indexPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer idx.Close()
	if _, err := idx.Write(row); err != nil {
		return fmt.Errorf("write index row: %w", err)
	}
	return nil
}

// get decompresses and returns the n-th (0-indexed) record in the column.
func (c *freezerColumn) get(n uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idxSize, err := fileSize(c.indexPath)
	if err != nil {
		return nil, err
	}
	rowStart := n * indexRowSize
	if rowStart+indexRowSize > uint64(idxSize) {
		return nil, ErrNotFound
	}
	fileNum, offset, err := c.readIndexRow(rowStart)
	if err != nil {
		return nil, err
	}

	nextStart := rowStart + indexRowSize
	var length int64
	if nextStart+indexRowSize <= uint64(idxSize) {
		nextFileNum, nextOffset, err := c.readIndexRow(nextStart)
		if err != nil {
			return nil, err
		}
		if nextFileNum == fileNum {
			length = int64(nextOffset) - int64(offset)
		} else {
			sz, err := fileSize(c.dataFilePath(fileNum))
			if err != nil {
				return nil, err
			}
			length = sz - int64(offset)
		}
	} else {
		sz, err := fileSize(c.dataFilePath(fileNum))
		if err != nil {
			return nil, err
		}
		length = sz - int64(offset)
	}
	if length < 0 {
		return nil, fmt.Errorf("freezer: negative record length for %s record %d", c.name, n)
	}

	fh, err := os.Open(c.dataFilePath(fileNum))
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer fh.Close()
	buf := make([]byte, length)
	if _, err := fh.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	out, err := snappy.Decode(nil, buf)
	if err != nil {
		return nil, fmt.Errorf("decompress record: %w", err)
	}
	return out, nil
}

func (c *freezerColumn) readIndexRow(byteOffset uint64) (fileNum uint16, offset uint32, err error) {
	fh, err := os.Open(c.indexPath)
	if err != nil {
		return 0, 0, fmt.Errorf("open index file: %w", err)
	}
	defer fh.Close()
	row := make([]byte, indexRowSize)
	if _, err := fh.ReadAt(row, int64(byteOffset)); err != nil {
		return 0, 0, fmt.Errorf("read index row: %w", err)
	}
	return binary.BigEndian.Uint16(row[0:2]), binary.BigEndian.Uint32(row[2:6]), nil
}

func (c *freezerColumn) lastFileNumber() (uint16, error) {
	idxSize, err := fileSize(c.indexPath)
	if err != nil {
		return 0, err
	}
	if idxSize < indexRowSize {
		return 0, nil
	}
	fileNum, _, err := c.readIndexRow(uint64(idxSize) - indexRowSize)
	return fileNum, err
}

func fileSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return st.Size(), nil
}
