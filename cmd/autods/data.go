package main

import (
	"context"
	"errors"

	"github.com/tailored-agentic-units/autods/dataset"
	"github.com/tailored-agentic-units/autods/sandbox"
)

// loadDataset reads the table named by the data flags: a file path, or a
// read-only query against a database.
func loadDataset(ctx context.Context, path, database, query string) (*sandbox.Dataset, error) {
	switch {
	case query != "":
		if database == "" {
			return nil, errors.New("--query requires --database")
		}
		db, err := dataset.Open(database)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return dataset.Query(ctx, db, query)
	case path != "":
		return dataset.Load(path)
	}
	return nil, nil
}
