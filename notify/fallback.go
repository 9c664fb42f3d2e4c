package notify

import (
	"fmt"
	"log/slog"
)

type Kind string

const (
	KindInfo  Kind = "info"
	KindError Kind = "error"
)

const (
	titleScanDetected = "📡 RFID Scan Detected!"
	titleInvalidScan  = "❌ Invalid RFID Scan"
	standaloneNote    = "Note: Open the main POS system to process this scan."
)

// Payload 是面向用户的提示内容
type Payload struct {
	Kind    Kind
	Title   string
	Content string
}

// Sender 同步地把提示展示给用户
type Sender interface {
	Send(payload Payload)
}

// Fallback 在没有 POS 可用时描述一次扫描
type Fallback struct {
	catalog Catalog
	sender  Sender
	logger  *slog.Logger
}

func NewFallback(catalog Catalog, sender Sender, log *slog.Logger) *Fallback {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if log == nil {
		log = slog.Default().With("component", "notify.fallback")
	}
	return &Fallback{
		catalog: catalog,
		sender:  sender,
		logger:  log,
	}
}

// Notify 展示扫描结果；未知商品走错误提示
func (f *Fallback) Notify(productID string) {
	payload := Describe(f.catalog, productID)
	if payload.Kind == KindError {
		f.logger.Warn("Unrecognized product scanned", "product_id", productID)
	} else {
		f.logger.Info("RFID scan (standalone)", "product_id", productID)
	}

	if f.sender == nil {
		return
	}
	f.sender.Send(payload)
}

// Describe 根据商品表生成提示内容
func Describe(catalog Catalog, productID string) Payload {
	product, ok := catalog.Lookup(productID)
	if !ok {
		return Payload{
			Kind:    KindError,
			Title:   titleInvalidScan,
			Content: fmt.Sprintf("Product ID: %s\n\nThis product is not recognized.", productID),
		}
	}

	return Payload{
		Kind:  KindInfo,
		Title: titleScanDetected,
		Content: fmt.Sprintf("%s %s\n\nProduct ID: %s\n\n%s",
			product.Glyph, product.DisplayName, productID, standaloneNote),
	}
}
