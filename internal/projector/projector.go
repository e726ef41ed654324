// ABOUTME: Read-only public projection of a single view
// ABOUTME: Filters by visibility, renumbers items sequentially and computes subtotals/total

package projector

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/scopebook/scopebook/internal/store"
)

// ErrBadPassword is returned when a protected view's password check
// fails. Distinct from NotFound: requiring a password already discloses
// the view exists.
var ErrBadPassword = errors.New("wrong password")

// ContentReader is the slice of the store the projector needs.
type ContentReader interface {
	GetViewByToken(ctx context.Context, token string) (*store.View, error)
	GetViewContent(ctx context.Context, viewID string) (*store.ViewContent, error)
}

// Projector produces the externally-visible document for one view.
type Projector struct {
	reader ContentReader
	logger *slog.Logger
}

// New creates a Projector over the given reader.
func New(reader ContentReader) *Projector {
	return &Projector{
		reader: reader,
		logger: slog.Default().With("component", "projector"),
	}
}

// Document is the public, filtered, renumbered projection of a view.
type Document struct {
	Title     string            `json:"title"`
	ViewName  string            `json:"view_name"`
	IntroHTML string            `json:"intro_html,omitempty"`
	Sections  []DocumentSection `json:"sections"`
	Total     float64           `json:"total"`
}

// DocumentSection is one kept section with its kept items and subtotal.
type DocumentSection struct {
	Name     string         `json:"name"`
	Items    []DocumentItem `json:"items"`
	Subtotal float64        `json:"subtotal"`
}

// DocumentItem is one kept line. Number is freshly sequential within the
// section; the item's stored display number is not used, so hidden items
// never leave gaps.
type DocumentItem struct {
	Number   int     `json:"number"`
	Name     string  `json:"name"`
	Unit     string  `json:"unit,omitempty"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Total    float64 `json:"total"`
}

// Project builds the public document for viewID. It has no side effects.
// A section is kept when its visibility setting is true (missing rows read
// as visible) and it has at least one kept item; kept items are renumbered
// 1..N per section. Subtotals sum the stored item totals; the grand total
// sums the subtotals.
//
// Password gating is the caller's job: call VerifyPassword first for
// protected views.
func (p *Projector) Project(ctx context.Context, viewID string) (*Document, error) {
	content, err := p.reader.GetViewContent(ctx, viewID)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Title:    content.Estimate.Title,
		ViewName: content.View.Name,
	}

	if content.View.Intro != "" {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(content.View.Intro), &buf); err != nil {
			p.logger.Error("failed to render view intro", "error", err, "view", viewID)
		} else {
			doc.IntroHTML = buf.String()
		}
	}

	for _, sec := range content.Sections {
		if setting, ok := content.SectionSettings[sec.ID]; ok && !setting.Visible {
			continue
		}

		out := DocumentSection{Name: sec.Name}
		number := 0
		for _, item := range content.Items[sec.ID] {
			setting := content.ItemSettings[item.ID]
			if setting != nil && !setting.Visible {
				continue
			}
			number++
			line := DocumentItem{
				Number:   number,
				Name:     item.Name,
				Unit:     item.Unit,
				Quantity: item.Quantity,
			}
			if setting != nil {
				line.Price = setting.Price
				line.Total = setting.Total
			}
			out.Items = append(out.Items, line)
			out.Subtotal += line.Total
		}

		// A visible section with no kept items is suppressed entirely.
		if len(out.Items) == 0 {
			continue
		}

		doc.Sections = append(doc.Sections, out)
		doc.Total += out.Subtotal
	}

	return doc, nil
}

// ProjectByToken resolves a public link token and projects its view.
// Returns ErrBadPassword when the view is protected and password does not
// match; pass the empty string for unprotected views.
func (p *Projector) ProjectByToken(ctx context.Context, token, password string) (*Document, error) {
	view, err := p.reader.GetViewByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if view.Password != "" {
		if err := VerifyPassword(view, password); err != nil {
			return nil, err
		}
	}
	return p.Project(ctx, view.ID)
}

// Protected reports whether the view behind token requires a password.
func (p *Projector) Protected(ctx context.Context, token string) (*store.View, bool, error) {
	view, err := p.reader.GetViewByToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	return view, view.Password != "", nil
}

// VerifyPassword checks a candidate against the view's stored password.
// Comparison is case-sensitive over the trimmed candidate, in constant
// time.
func VerifyPassword(view *store.View, candidate string) error {
	if view.Password == "" {
		return nil
	}
	candidate = strings.TrimSpace(candidate)
	if subtle.ConstantTimeCompare([]byte(view.Password), []byte(candidate)) != 1 {
		return fmt.Errorf("%w: view %s", ErrBadPassword, view.ID)
	}
	return nil
}
