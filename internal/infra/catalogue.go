package infra

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stock_auction/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const catalogueColumns = 4 // symbol, base_price, security_code, profit_hint

var errEmptyCatalogue = errors.New("catalogue has no stocks")

// LoadCatalogue reads the stock catalogue at path. Files ending in .yaml or
// .yml are YAML, anything else is CSV.
func LoadCatalogue(path string) ([]domain.Stock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseCatalogueYAML(f)
	default:
		return ParseCatalogueCSV(f)
	}
}

// ParseCatalogueCSV parses `symbol,base_price,security_code,profit_hint`
// records. A first record with a non-numeric base_price is a header.
// Lines starting with '#' are comments.
func ParseCatalogueCSV(r io.Reader) ([]domain.Stock, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		stocks []domain.Stock
		seen   = make(map[string]bool)
		first  = true
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &domain.CatalogueError{Line: pe.Line, Err: pe.Err}
			}
			return nil, fmt.Errorf("catalogue: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) != catalogueColumns {
			return nil, &domain.CatalogueError{Line: line, Err: fmt.Errorf("want %d fields, got %d", catalogueColumns, len(rec))}
		}
		if first {
			first = false
			if _, err := decimal.NewFromString(strings.TrimSpace(rec[1])); err != nil {
				continue
			}
		}

		s, err := buildStock(rec[0], rec[1], rec[2], rec[3], seen)
		if err != nil {
			return nil, &domain.CatalogueError{Line: line, Err: err}
		}
		stocks = append(stocks, s)
	}

	if len(stocks) == 0 {
		return nil, errEmptyCatalogue
	}
	return stocks, nil
}

// scalar keeps the literal text of a YAML scalar so prices stay exact.
type scalar string

func (s *scalar) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", n.Line)
	}
	*s = scalar(n.Value)
	return nil
}

type yamlStock struct {
	Symbol       scalar `yaml:"symbol"`
	BasePrice    scalar `yaml:"base_price"`
	SecurityCode scalar `yaml:"security_code"`
	ProfitHint   scalar `yaml:"profit_hint"`
}

// ParseCatalogueYAML parses a YAML sequence of
// {symbol, base_price, security_code, profit_hint} mappings.
func ParseCatalogueYAML(r io.Reader) ([]domain.Stock, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyCatalogue
		}
		return nil, fmt.Errorf("catalogue: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.SequenceNode {
		return nil, &domain.CatalogueError{Line: doc.Line, Err: errors.New("expected a list of stocks")}
	}

	var (
		stocks []domain.Stock
		seen   = make(map[string]bool)
	)
	for _, item := range doc.Content[0].Content {
		var rec yamlStock
		if err := item.Decode(&rec); err != nil {
			return nil, &domain.CatalogueError{Line: item.Line, Err: err}
		}
		profit := string(rec.ProfitHint)
		if profit == "" {
			profit = "0"
		}
		s, err := buildStock(string(rec.Symbol), string(rec.BasePrice), string(rec.SecurityCode), profit, seen)
		if err != nil {
			return nil, &domain.CatalogueError{Line: item.Line, Err: err}
		}
		stocks = append(stocks, s)
	}

	if len(stocks) == 0 {
		return nil, errEmptyCatalogue
	}
	return stocks, nil
}

func buildStock(symbol, base, code, profit string, seen map[string]bool) (domain.Stock, error) {
	symbol = strings.TrimSpace(symbol)
	code = strings.TrimSpace(code)

	if symbol == "" {
		return domain.Stock{}, errors.New("empty symbol")
	}
	if seen[symbol] {
		return domain.Stock{}, fmt.Errorf("%w: %s", domain.ErrDuplicateSymbol, symbol)
	}
	if code == "" {
		return domain.Stock{}, fmt.Errorf("%s: empty security code", symbol)
	}

	basePrice, err := parsePrice(base)
	if err != nil {
		return domain.Stock{}, fmt.Errorf("%s: base_price: %w", symbol, err)
	}
	profitHint, err := parsePrice(profit)
	if err != nil {
		return domain.Stock{}, fmt.Errorf("%s: profit_hint: %w", symbol, err)
	}

	seen[symbol] = true
	return domain.NewStock(symbol, basePrice, code, profitHint), nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("must not be negative")
	}
	return d, nil
}
