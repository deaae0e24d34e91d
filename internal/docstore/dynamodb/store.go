package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/condobill/condobill/internal/config"
	"github.com/condobill/condobill/internal/docstore"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/types"
)

// Store is the DynamoDB implementation of docstore.Store. Documents live
// in a single table keyed by (pk = collection path, sk = document id);
// atomic batches map to TransactWriteItems, whose 25-item ceiling is the
// source of docstore.MaxBatchSize.
type Store struct {
	client *Client
	table  string
	pool   *docstore.Pool
	logger *logger.Logger
}

type item struct {
	PK   string         `dynamodbav:"pk"`
	SK   string         `dynamodbav:"sk"`
	Path string         `dynamodbav:"path"`
	Rev  string         `dynamodbav:"rev"`
	Doc  map[string]any `dynamodbav:"doc"`
}

func NewStore(client *Client, cfg *config.Configuration, logger *logger.Logger) *Store {
	return &Store{
		client: client,
		table:  cfg.DynamoDB.Table,
		pool:   docstore.NewPool(cfg.DynamoDB.PoolSize),
		logger: logger,
	}
}

func splitPath(path string) (string, string, error) {
	path = strings.Trim(path, "/")
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "", "", ierr.NewErrorf("invalid document path %q", path).
			Mark(ierr.ErrPermanent)
	}
	return path[:i], path[i+1:], nil
}

func docToMap(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermanent)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermanent)
	}
	return m, nil
}

func mapToOut(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrPermanent)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return ierr.WithError(err).
			WithHint("Stored document does not match the expected shape").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// mapError translates SDK failures onto the store taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var condFailed *ddbtypes.ConditionalCheckFailedException
	if ierr.As(err, &condFailed) {
		return ierr.WithError(err).Mark(ierr.ErrVersionConflict)
	}
	var txCanceled *ddbtypes.TransactionCanceledException
	if ierr.As(err, &txCanceled) {
		for _, reason := range txCanceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return ierr.WithError(err).Mark(ierr.ErrVersionConflict)
			}
		}
		return ierr.WithError(err).Mark(ierr.ErrTransient)
	}
	var throughput *ddbtypes.ProvisionedThroughputExceededException
	if ierr.As(err, &throughput) {
		return ierr.WithError(err).Mark(ierr.ErrTransient)
	}
	var txConflict *ddbtypes.TransactionConflictException
	if ierr.As(err, &txConflict) {
		return ierr.WithError(err).Mark(ierr.ErrVersionConflict)
	}
	var limit *ddbtypes.RequestLimitExceeded
	if ierr.As(err, &limit) {
		return ierr.WithError(err).Mark(ierr.ErrTransient)
	}
	var internal *ddbtypes.InternalServerError
	if ierr.As(err, &internal) {
		return ierr.WithError(err).Mark(ierr.ErrTransient)
	}
	return ierr.WithError(err).Mark(ierr.ErrPermanent)
}

func (s *Store) key(pk, sk string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"pk": &ddbtypes.AttributeValueMemberS{Value: pk},
		"sk": &ddbtypes.AttributeValueMemberS{Value: sk},
	}
}

func (s *Store) Get(ctx context.Context, path string, out any) (docstore.Revision, bool, error) {
	pk, sk, err := splitPath(path)
	if err != nil {
		return "", false, err
	}

	resp, err := s.client.DB().GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, mapError(err)
	}
	if resp.Item == nil {
		return "", false, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(resp.Item, &it); err != nil {
		return "", false, ierr.WithError(err).Mark(ierr.ErrPermanent)
	}
	if out != nil {
		if err := mapToOut(it.Doc, out); err != nil {
			return "", false, err
		}
	}
	return docstore.Revision(it.Rev), true, nil
}

func (s *Store) putInput(path string, doc any, opts docstore.SetOptions) (*dynamodb.PutItemInput, error) {
	pk, sk, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	m, err := docToMap(doc)
	if err != nil {
		return nil, err
	}

	av, err := attributevalue.MarshalMap(item{
		PK:   pk,
		SK:   sk,
		Path: path,
		Rev:  types.GenerateUUID(),
		Doc:  m,
	})
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermanent)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}
	switch {
	case opts.CreateOnly:
		input.ConditionExpression = aws.String("attribute_not_exists(pk)")
	case opts.IfRev != "":
		input.ConditionExpression = aws.String("rev = :rev")
		input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
			":rev": &ddbtypes.AttributeValueMemberS{Value: string(opts.IfRev)},
		}
	}
	return input, nil
}

func (s *Store) Set(ctx context.Context, path string, doc any, opts docstore.SetOptions) error {
	if opts.Merge {
		return s.merge(ctx, path, doc, opts)
	}
	input, err := s.putInput(path, doc, opts)
	if err != nil {
		return err
	}
	if _, err := s.client.DB().PutItem(ctx, input); err != nil {
		err = mapError(err)
		if opts.CreateOnly && ierr.IsVersionConflict(err) {
			return ierr.WithError(err).
				WithHintf("Document %s already exists", path).
				Mark(ierr.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

// merge implements read-modify-write merge semantics under an optimistic
// revision check.
func (s *Store) merge(ctx context.Context, path string, doc any, opts docstore.SetOptions) error {
	var existing map[string]any
	rev, exists, err := s.Get(ctx, path, &existing)
	if err != nil {
		return err
	}

	incoming, err := docToMap(doc)
	if err != nil {
		return err
	}

	merged := incoming
	if exists {
		merged = mergeMaps(existing, incoming)
		if opts.IfRev == "" {
			opts.IfRev = rev
		}
	}
	opts.Merge = false
	return s.Set(ctx, path, merged, opts)
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if bv, ok := out[k].(map[string]any); ok {
			if ov, ok := v.(map[string]any); ok {
				out[k] = mergeMaps(bv, ov)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any, opts docstore.UpdateOptions) error {
	pk, sk, err := splitPath(path)
	if err != nil {
		return err
	}

	names := map[string]string{"#doc": "doc"}
	values := map[string]ddbtypes.AttributeValue{
		":newrev": &ddbtypes.AttributeValueMemberS{Value: types.GenerateUUID()},
	}

	var sets []string
	i := 0
	for field, value := range fields {
		segs := strings.Split(field, ".")
		parts := make([]string, 0, len(segs)+1)
		parts = append(parts, "#doc")
		for j, seg := range segs {
			name := fmt.Sprintf("#f%d_%d", i, j)
			names[name] = seg
			parts = append(parts, name)
		}
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrPermanent)
		}
		placeholder := fmt.Sprintf(":v%d", i)
		values[placeholder] = av
		sets = append(sets, fmt.Sprintf("%s = %s", strings.Join(parts, "."), placeholder))
		i++
	}
	sets = append(sets, "rev = :newrev")
	sort.Strings(sets)

	cond := "attribute_exists(pk)"
	if opts.IfRev != "" {
		cond += " AND rev = :rev"
		values[":rev"] = &ddbtypes.AttributeValueMemberS{Value: string(opts.IfRev)}
	}

	_, err = s.client.DB().UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(pk, sk),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		err = mapError(err)
		if opts.IfRev == "" && ierr.IsVersionConflict(err) {
			// the only condition was attribute_exists
			return ierr.WithError(err).
				WithHintf("Document %s does not exist", path).
				Mark(ierr.ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	pk, sk, err := splitPath(path)
	if err != nil {
		return err
	}
	_, err = s.client.DB().DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(pk, sk),
	})
	return mapError(err)
}

func (s *Store) List(ctx context.Context, prefix string, opts docstore.ListOptions) ([]docstore.Entry, error) {
	collection := strings.Trim(prefix, "/")
	// Odd segment counts address a single collection and can use the key
	// schema; anything else (e.g. a whole-client prefix for backups) walks
	// the table.
	if strings.Count(collection, "/")%2 == 0 {
		return s.listCollection(ctx, collection, "", opts)
	}
	return s.scanPrefix(ctx, prefix, opts)
}

func (s *Store) listCollection(ctx context.Context, collection, skPrefix string, opts docstore.ListOptions) ([]docstore.Entry, error) {
	values := map[string]ddbtypes.AttributeValue{
		":pk": &ddbtypes.AttributeValueMemberS{Value: collection},
	}
	keyCond := "pk = :pk"
	if skPrefix != "" {
		keyCond += " AND begins_with(sk, :sk)"
		values[":sk"] = &ddbtypes.AttributeValueMemberS{Value: skPrefix}
	}

	var entries []docstore.Entry
	var startKey map[string]ddbtypes.AttributeValue
	for {
		resp, err := s.client.DB().Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    aws.String(keyCond),
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
			ConsistentRead:            aws.Bool(true),
		})
		if err != nil {
			return nil, mapError(err)
		}
		for _, raw := range resp.Items {
			entry, err := itemToEntry(raw)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
		if resp.LastEvaluatedKey == nil {
			break
		}
		startKey = resp.LastEvaluatedKey
	}
	return applyListOptions(entries, opts), nil
}

func (s *Store) scanPrefix(ctx context.Context, prefix string, opts docstore.ListOptions) ([]docstore.Entry, error) {
	var entries []docstore.Entry
	var startKey map[string]ddbtypes.AttributeValue
	for {
		resp, err := s.client.DB().Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.table),
			FilterExpression: aws.String("begins_with(#path, :prefix)"),
			ExpressionAttributeNames: map[string]string{
				"#path": "path",
			},
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":prefix": &ddbtypes.AttributeValueMemberS{Value: prefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, mapError(err)
		}
		for _, raw := range resp.Items {
			entry, err := itemToEntry(raw)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
		if resp.LastEvaluatedKey == nil {
			break
		}
		startKey = resp.LastEvaluatedKey
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return applyListOptions(entries, opts), nil
}

func applyListOptions(entries []docstore.Entry, opts docstore.ListOptions) []docstore.Entry {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	if opts.StartAfter != "" {
		cut := sort.Search(len(entries), func(i int) bool {
			return entries[i].Path > opts.StartAfter
		})
		entries = entries[cut:]
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries
}

func itemToEntry(raw map[string]ddbtypes.AttributeValue) (docstore.Entry, error) {
	var it item
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return docstore.Entry{}, ierr.WithError(err).Mark(ierr.ErrPermanent)
	}
	data, err := json.Marshal(it.Doc)
	if err != nil {
		return docstore.Entry{}, ierr.WithError(err).Mark(ierr.ErrPermanent)
	}
	return docstore.Entry{Path: it.Path, Rev: docstore.Revision(it.Rev), Data: data}, nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Entry, error) {
	entries, err := s.listCollection(ctx, strings.Trim(collection, "/"), "", docstore.ListOptions{})
	if err != nil {
		return nil, err
	}
	return docstore.EvaluateQuery(entries, q)
}

func (s *Store) Batch() docstore.Batch {
	return &batch{store: s}
}

func (s *Store) Acquire(ctx context.Context) (*docstore.Handle, error) {
	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return docstore.NewHandle(s, release), nil
}

type batchOp struct {
	item ddbtypes.TransactWriteItem
}

type batch struct {
	store     *Store
	ops       []batchOp
	buildErr  error
	committed bool
}

func (b *batch) fail(err error) {
	if b.buildErr == nil {
		b.buildErr = err
	}
}

func (b *batch) Set(path string, doc any, opts docstore.SetOptions) {
	input, err := b.store.putInput(path, doc, opts)
	if err != nil {
		b.fail(err)
		return
	}
	b.ops = append(b.ops, batchOp{item: ddbtypes.TransactWriteItem{
		Put: &ddbtypes.Put{
			TableName:                 input.TableName,
			Item:                      input.Item,
			ConditionExpression:       input.ConditionExpression,
			ExpressionAttributeValues: input.ExpressionAttributeValues,
		},
	}})
}

func (b *batch) Update(path string, fields map[string]any, opts docstore.UpdateOptions) {
	pk, sk, err := splitPath(path)
	if err != nil {
		b.fail(err)
		return
	}

	names := map[string]string{"#doc": "doc"}
	values := map[string]ddbtypes.AttributeValue{
		":newrev": &ddbtypes.AttributeValueMemberS{Value: types.GenerateUUID()},
	}
	var sets []string
	i := 0
	for field, value := range fields {
		segs := strings.Split(field, ".")
		parts := make([]string, 0, len(segs)+1)
		parts = append(parts, "#doc")
		for j, seg := range segs {
			name := fmt.Sprintf("#f%d_%d", i, j)
			names[name] = seg
			parts = append(parts, name)
		}
		av, err := attributevalue.Marshal(value)
		if err != nil {
			b.fail(ierr.WithError(err).Mark(ierr.ErrPermanent))
			return
		}
		placeholder := fmt.Sprintf(":v%d", i)
		values[placeholder] = av
		sets = append(sets, fmt.Sprintf("%s = %s", strings.Join(parts, "."), placeholder))
		i++
	}
	sets = append(sets, "rev = :newrev")
	sort.Strings(sets)

	cond := "attribute_exists(pk)"
	if opts.IfRev != "" {
		cond += " AND rev = :rev"
		values[":rev"] = &ddbtypes.AttributeValueMemberS{Value: string(opts.IfRev)}
	}

	b.ops = append(b.ops, batchOp{item: ddbtypes.TransactWriteItem{
		Update: &ddbtypes.Update{
			TableName:                 aws.String(b.store.table),
			Key:                       b.store.key(pk, sk),
			UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
			ConditionExpression:       aws.String(cond),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		},
	}})
}

func (b *batch) Delete(path string) {
	pk, sk, err := splitPath(path)
	if err != nil {
		b.fail(err)
		return
	}
	b.ops = append(b.ops, batchOp{item: ddbtypes.TransactWriteItem{
		Delete: &ddbtypes.Delete{
			TableName: aws.String(b.store.table),
			Key:       b.store.key(pk, sk),
		},
	}})
}

func (b *batch) Len() int {
	return len(b.ops)
}

func (b *batch) Commit(ctx context.Context) error {
	if b.committed {
		return ierr.NewError("batch already committed").Mark(ierr.ErrPermanent)
	}

	if b.buildErr != nil {
		return b.buildErr
	}
	if len(b.ops) == 0 {
		b.committed = true
		return nil
	}
	if len(b.ops) > docstore.MaxBatchSize {
		return ierr.NewErrorf("batch of %d exceeds the %d-op transaction limit",
			len(b.ops), docstore.MaxBatchSize).
			Mark(ierr.ErrPermanent)
	}

	items := make([]ddbtypes.TransactWriteItem, len(b.ops))
	for i, op := range b.ops {
		items[i] = op.item
	}
	_, err := b.store.client.DB().TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		err = mapError(err)
		// a throttled transaction never applied; leave the batch
		// retryable so the retry decorator can resubmit it
		if ierr.IsTransient(err) {
			return err
		}
		b.committed = true
		return err
	}
	b.committed = true
	return nil
}
