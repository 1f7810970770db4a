package database

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// ConnectCosmos returns a client for one Cosmos database using a key credential.
// No request is made until the first operation.
func ConnectCosmos(endpoint, key, databaseID string) (*azcosmos.DatabaseClient, error) {
	if endpoint == "" || databaseID == "" {
		return nil, fmt.Errorf("cosmos: endpoint and database are required")
	}
	cred, err := azcosmos.NewKeyCredential(key)
	if err != nil {
		return nil, fmt.Errorf("cosmos credential: %w", err)
	}
	client, err := azcosmos.NewClientWithKey(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("cosmos client: %w", err)
	}
	db, err := client.NewDatabase(databaseID)
	if err != nil {
		return nil, fmt.Errorf("cosmos database %s: %w", databaseID, err)
	}
	return db, nil
}
