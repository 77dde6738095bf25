package store

import (
	"encoding/json"
	"fmt"
	"log"
)

func (s *SQLiteStore) CreateIndexVector(v *IndexVector) error {
	embeddingBytes, err := json.Marshal(v.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	v.EmbeddingJSON = string(embeddingBytes)

	res, err := s.db.Exec("INSERT INTO index_vectors (kind, product_id, embedding_json) VALUES (?, ?, ?)", v.Kind, v.ProductID, v.EmbeddingJSON)
	if err != nil {
		return fmt.Errorf("failed to insert index vector: %w", err)
	}
	v.ID, _ = res.LastInsertId()
	return nil
}

// GetIndexVectors loads every stored vector of one kind. Rows with a missing
// or corrupt embedding are skipped with a warning.
func (s *SQLiteStore) GetIndexVectors(kind string) ([]IndexVector, error) {
	rows, err := s.db.Query("SELECT id, kind, product_id, embedding_json FROM index_vectors WHERE kind = ? ORDER BY id ASC", kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query index_vectors: %w", err)
	}
	defer rows.Close()

	var vectors []IndexVector
	for rows.Next() {
		var v IndexVector
		var embeddingJSON *string
		if err := rows.Scan(&v.ID, &v.Kind, &v.ProductID, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan index vector row: %w", err)
		}
		if embeddingJSON == nil || *embeddingJSON == "" {
			log.Printf("Warning: empty embedding for %s vector %d (product %d), skipping.", v.Kind, v.ID, v.ProductID)
			continue
		}
		if err := json.Unmarshal([]byte(*embeddingJSON), &v.Embedding); err != nil {
			log.Printf("Warning: failed to unmarshal %s vector %d (product %d): %v, skipping.", v.Kind, v.ID, v.ProductID, err)
			continue
		}
		v.EmbeddingJSON = *embeddingJSON
		vectors = append(vectors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate index vectors: %w", err)
	}
	return vectors, nil
}

func (s *SQLiteStore) CountIndexVectors(kind string) (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM index_vectors WHERE kind = ?", kind).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count index vectors: %w", err)
	}
	return n, nil
}
