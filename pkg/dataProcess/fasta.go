package dataProcess

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record 一条FASTA记录，Header不含'>'
type Record struct {
	Header string
	Seq    string
}

// FastaReader 逐条读取FASTA格式的记录
type FastaReader struct {
	scanner *bufio.Scanner
	header  string
	started bool
	done    bool
}

// NewFastaReader 从r读取FASTA记录
func NewFastaReader(r io.Reader) *FastaReader {
	scanner := bufio.NewScanner(r)
	// 单行序列可能很长
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	return &FastaReader{scanner: scanner}
}

// Next 返回下一条记录，读完时返回io.EOF
func (fr *FastaReader) Next() (Record, error) {
	if fr.done {
		return Record{}, io.EOF
	}

	var seq strings.Builder
	for fr.scanner.Scan() {
		line := strings.TrimSpace(fr.scanner.Text())
		if strings.HasPrefix(line, ">") {
			header := strings.TrimSpace(line[1:])
			if !fr.started {
				fr.started = true
				fr.header = header
				continue
			}
			rec := Record{Header: fr.header, Seq: seq.String()}
			fr.header = header
			return rec, nil
		}
		if line == "" {
			continue
		}
		if !fr.started {
			return Record{}, fmt.Errorf("%w: %q", ErrMissingHeader, line)
		}
		seq.WriteString(line)
	}
	if err := fr.scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("读取FASTA失败: %w", err)
	}

	fr.done = true
	if !fr.started {
		return Record{}, io.EOF
	}
	return Record{Header: fr.header, Seq: seq.String()}, nil
}

// ReadAll 读取剩余的全部记录
func (fr *FastaReader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		rec, err := fr.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// ReadFasta 读取FASTA文件，.gz结尾的文件先解压
func ReadFasta(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开FASTA文件: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("无法解压缩文件: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	return NewFastaReader(r).ReadAll()
}
