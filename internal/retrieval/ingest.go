package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/freshcart/support-agent/internal/agent/model"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

type faqRecord struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

// IngestFiles builds the knowledge base from the FAQ and product catalog
// files, embedding each document into the store. Ingestion runs once at
// startup; a failed embed aborts so the index is never partially silent.
func IngestFiles(ctx context.Context, embedder Embedder, store *Store, faqPath, productsPath string) error {
	docs, err := loadDocuments(faqPath, productsPath)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		vec, err := embedder.Embed(ctx, doc.Content)
		if err != nil {
			return fmt.Errorf("embed %s: %w", doc.ID, err)
		}
		store.Add(doc, vec)
	}

	logx.Info().Int("documents", store.Len()).Msg("knowledge base ingested")
	return nil
}

func loadDocuments(faqPath, productsPath string) ([]Document, error) {
	var docs []Document

	raw, err := os.ReadFile(faqPath)
	if err != nil {
		return nil, fmt.Errorf("read faq file: %w", err)
	}
	var faqs []faqRecord
	if err := json.Unmarshal(raw, &faqs); err != nil {
		return nil, fmt.Errorf("parse faq file: %w", err)
	}
	for _, f := range faqs {
		docs = append(docs, Document{
			ID:      f.ID,
			Title:   f.Question,
			Content: fmt.Sprintf("Q: %s\nA: %s", f.Question, f.Answer),
			Source:  "faq",
		})
	}

	raw, err = os.ReadFile(productsPath)
	if err != nil {
		return nil, fmt.Errorf("read products file: %w", err)
	}
	var products []model.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("parse products file: %w", err)
	}
	for _, p := range products {
		stock := "in stock"
		if !p.InStock {
			stock = "currently out of stock"
		}
		docs = append(docs, Document{
			ID:    p.ID,
			Title: p.Name,
			Content: fmt.Sprintf("%s (%s), $%.2f, %s. %s",
				p.Name, p.Category, p.Price, stock, p.Description),
			Source: "catalog",
		})
	}

	return docs, nil
}
