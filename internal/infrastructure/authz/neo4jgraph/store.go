package neo4jgraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

// Store keeps authorization tuples as a relationship graph. A check passes
// on a direct tuple or through one level of group membership: the subject
// is a member of a group that holds the relation on the object.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(ctx context.Context, uri, user, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Store{driver: driver, database: database}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

const checkQuery = `
MATCH (subject:Entity {ref: $subject})
OPTIONAL MATCH (subject)-[direct:REL {name: $relation}]->(:Entity {ref: $object})
OPTIONAL MATCH (subject)-[:REL {name: 'member'}]->(:Entity)-[indirect:REL {name: $relation}]->(:Entity {ref: $object})
RETURN direct IS NOT NULL OR indirect IS NOT NULL AS allowed
`

func (s *Store) Check(ctx context.Context, subject, relation, object string) (bool, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, checkQuery, map[string]any{
			"subject":  subject,
			"relation": relation,
			"object":   object,
		})
		if err != nil {
			return nil, err
		}
		record, err := records.Single(ctx)
		if err != nil {
			// No subject node means no tuples, which is a plain denial.
			return false, nil
		}
		allowed, _ := record.Get("allowed")
		value, ok := allowed.(bool)
		return ok && value, nil
	})
	if err != nil {
		return false, domain.WrapError(domain.ErrTemporary, "graph authz check", err)
	}
	return result.(bool), nil
}

func (s *Store) AddRelationship(ctx context.Context, subject, relation, object string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
MERGE (s:Entity {ref: $subject})
MERGE (o:Entity {ref: $object})
MERGE (s)-[:REL {name: $relation}]->(o)
`, map[string]any{"subject": subject, "relation": relation, "object": object})
		return nil, err
	})
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "add relationship", err)
	}
	return nil
}

func (s *Store) RemoveRelationship(ctx context.Context, subject, relation, object string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
MATCH (:Entity {ref: $subject})-[r:REL {name: $relation}]->(:Entity {ref: $object})
DELETE r
`, map[string]any{"subject": subject, "relation": relation, "object": object})
		return nil, err
	})
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "remove relationship", err)
	}
	return nil
}

func (s *Store) ListRelationships(ctx context.Context) ([][3]string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, `
MATCH (s:Entity)-[r:REL]->(o:Entity)
RETURN s.ref AS subject, r.name AS relation, o.ref AS object
ORDER BY subject, relation, object
`, nil)
		if err != nil {
			return nil, err
		}

		var tuples [][3]string
		for records.Next(ctx) {
			record := records.Record()
			subject, _ := record.Get("subject")
			relation, _ := record.Get("relation")
			object, _ := record.Get("object")
			tuples = append(tuples, [3]string{asString(subject), asString(relation), asString(object)})
		}
		return tuples, records.Err()
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "list relationships", err)
	}
	return result.([][3]string), nil
}

func asString(value any) string {
	s, _ := value.(string)
	return s
}
