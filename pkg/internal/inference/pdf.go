package inference

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadable 源对象无法转成文本（损坏或超过读取上限的 PDF）.
var ErrUnreadable = errors.New("inference: document text unreadable")

// IsPDF 按扩展名判断，对象键由上传方决定，内容类型不可靠.
func IsPDF(key string) bool {
	return strings.EqualFold(path.Ext(key), ".pdf")
}

// SourceText 把源对象内容转为提示词文本. PDF 抽取正文，其余按 UTF-8 解码.
func SourceText(key string, raw []byte) (string, error) {
	if !IsPDF(key) {
		return DecodeText(raw), nil
	}

	text, err := pdfText(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadable, key, err)
	}

	return strings.TrimSpace(text), nil
}

// pdfText 解析器遇到畸形输入会 panic，这里转成错误.
func pdfText(raw []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", err
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}

	return buf.String(), nil
}
