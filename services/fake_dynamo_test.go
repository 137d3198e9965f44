package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"arena_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory Dynamo implementation with real conditional
// write and transaction semantics, covering the expression shapes the
// services use (SET with document paths, ADD on numbers, attribute_exists /
// attribute_not_exists, equality, <>, <, size(), list indexing).
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

var fakeKeyAttrs = map[string]string{
	models.RoomsTable:          "roomId",
	models.MatchesTable:        "matchId",
	models.PlayerProfilesTable: "playerId",
	models.ProblemsTable:       "problemId",
}

var fakeIndexes = map[string]struct {
	hashAttr  string
	rangeAttr string
}{
	models.RoomStatusIndex:   {"status", "createdAt"},
	models.MatchPlayer1Index: {"player1", "startTime"},
	models.MatchPlayer2Index: {"player2", "startTime"},
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: make(map[string]map[string]map[string]types.AttributeValue)}
}

var _ Dynamo = (*fakeDynamo)(nil)

func (f *fakeDynamo) table(name string) map[string]map[string]types.AttributeValue {
	if f.tables[name] == nil {
		f.tables[name] = make(map[string]map[string]types.AttributeValue)
	}
	return f.tables[name]
}

func (f *fakeDynamo) keyOf(tableName string, item map[string]types.AttributeValue) (string, error) {
	attr := fakeKeyAttrs[tableName]
	v, ok := item[attr].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("missing key attribute %s for table %s", attr, tableName)
	}
	return v.Value, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, tableName string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, err := f.keyOf(tableName, key)
	if err != nil {
		return nil, err
	}
	item, ok := f.table(tableName)[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	return copyItem(item), nil
}

func (f *fakeDynamo) PutItem(_ context.Context, tableName string, item interface{}) error {
	return f.putItem(tableName, item, "")
}

func (f *fakeDynamo) PutItemWithCondition(_ context.Context, tableName string, item interface{}, conditionExpression string) error {
	return f.putItem(tableName, item, conditionExpression)
}

func (f *fakeDynamo) putItem(tableName string, item interface{}, condition string) error {
	marshaled, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id, err := f.keyOf(tableName, marshaled)
	if err != nil {
		return err
	}
	existing := f.table(tableName)[id]
	if !evalCondition(existing, condition, nil, nil) {
		return &types.ConditionalCheckFailedException{}
	}
	f.table(tableName)[id] = copyItem(marshaled)
	return nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, tableName, updateExpression string, key, values map[string]types.AttributeValue, names map[string]string) (map[string]types.AttributeValue, error) {
	return f.UpdateItemWithCondition(ctx, tableName, updateExpression, "", key, values, names)
}

func (f *fakeDynamo) UpdateItemWithCondition(_ context.Context, tableName, updateExpression, conditionExpression string, key, values map[string]types.AttributeValue, names map[string]string) (map[string]types.AttributeValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateLocked(tableName, updateExpression, conditionExpression, key, values, names)
}

func (f *fakeDynamo) updateLocked(tableName, updateExpression, conditionExpression string, key, values map[string]types.AttributeValue, names map[string]string) (map[string]types.AttributeValue, error) {
	id, err := f.keyOf(tableName, key)
	if err != nil {
		return nil, err
	}
	existing := f.table(tableName)[id]
	if !evalCondition(existing, conditionExpression, values, names) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if existing == nil {
		// Updates upsert, seeding the item with its key.
		existing = map[string]types.AttributeValue{
			fakeKeyAttrs[tableName]: &types.AttributeValueMemberS{Value: id},
		}
	}
	updated := copyItem(existing)
	if err := applyUpdate(updated, updateExpression, values, names); err != nil {
		return nil, err
	}
	f.table(tableName)[id] = updated
	return copyItem(updated), nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, tableName string, key map[string]types.AttributeValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, err := f.keyOf(tableName, key)
	if err != nil {
		return err
	}
	delete(f.table(tableName), id)
	return nil
}

func (f *fakeDynamo) DeleteItemWithCondition(_ context.Context, tableName, conditionExpression string, key, values map[string]types.AttributeValue, names map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, err := f.keyOf(tableName, key)
	if err != nil {
		return err
	}
	existing := f.table(tableName)[id]
	if !evalCondition(existing, conditionExpression, values, names) {
		return &types.ConditionalCheckFailedException{}
	}
	delete(f.table(tableName), id)
	return nil
}

func (f *fakeDynamo) QueryItemsWithIndex(_ context.Context, tableName, indexName, keyConditionExpression string, values map[string]types.AttributeValue, names map[string]string, limit int32, latestFirst bool) ([]map[string]types.AttributeValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	index, ok := fakeIndexes[indexName]
	if !ok {
		return nil, fmt.Errorf("unknown index %s", indexName)
	}
	attr, want, err := parseEquality(keyConditionExpression, values, names)
	if err != nil {
		return nil, err
	}
	if attr != index.hashAttr {
		return nil, fmt.Errorf("key condition %q does not match index %s", keyConditionExpression, indexName)
	}

	var results []map[string]types.AttributeValue
	for _, item := range f.table(tableName) {
		if attrsEqual(item[attr], want) {
			results = append(results, copyItem(item))
		}
	}
	sortByNumericAttr(results, index.rangeAttr, latestFirst)
	if int32(len(results)) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeDynamo) ScanWithFilter(_ context.Context, tableName string, filterFunc func(map[string]types.AttributeValue) bool, excludeFields map[string]string, result interface{}) error {
	f.mu.Lock()
	var filtered []map[string]types.AttributeValue
	for _, item := range f.table(tableName) {
		excluded := false
		for field, value := range excludeFields {
			if s, ok := item[field].(*types.AttributeValueMemberS); ok && s.Value == value {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		if filterFunc == nil || filterFunc(item) {
			filtered = append(filtered, copyItem(item))
		}
	}
	f.mu.Unlock()

	return attributevalue.UnmarshalListOfMaps(filtered, result)
}

// TransactWriteItems checks every condition under one lock and applies all
// writes or none, mirroring DynamoDB's all-or-nothing contract.
func (f *fakeDynamo) TransactWriteItems(_ context.Context, items []types.TransactWriteItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Check phase
	for _, item := range items {
		switch {
		case item.Put != nil:
			id, err := f.keyOf(*item.Put.TableName, item.Put.Item)
			if err != nil {
				return err
			}
			existing := f.table(*item.Put.TableName)[id]
			if !evalCondition(existing, deref(item.Put.ConditionExpression), item.Put.ExpressionAttributeValues, item.Put.ExpressionAttributeNames) {
				return &types.TransactionCanceledException{}
			}
		case item.Update != nil:
			id, err := f.keyOf(*item.Update.TableName, item.Update.Key)
			if err != nil {
				return err
			}
			existing := f.table(*item.Update.TableName)[id]
			if !evalCondition(existing, deref(item.Update.ConditionExpression), item.Update.ExpressionAttributeValues, item.Update.ExpressionAttributeNames) {
				return &types.TransactionCanceledException{}
			}
		case item.Delete != nil:
			id, err := f.keyOf(*item.Delete.TableName, item.Delete.Key)
			if err != nil {
				return err
			}
			existing := f.table(*item.Delete.TableName)[id]
			if !evalCondition(existing, deref(item.Delete.ConditionExpression), item.Delete.ExpressionAttributeValues, item.Delete.ExpressionAttributeNames) {
				return &types.TransactionCanceledException{}
			}
		}
	}

	// Apply phase
	for _, item := range items {
		switch {
		case item.Put != nil:
			id, _ := f.keyOf(*item.Put.TableName, item.Put.Item)
			f.table(*item.Put.TableName)[id] = copyItem(item.Put.Item)
		case item.Update != nil:
			if _, err := f.updateLockedNoCondition(*item.Update.TableName, *item.Update.UpdateExpression, item.Update.Key, item.Update.ExpressionAttributeValues, item.Update.ExpressionAttributeNames); err != nil {
				return err
			}
		case item.Delete != nil:
			id, _ := f.keyOf(*item.Delete.TableName, item.Delete.Key)
			delete(f.table(*item.Delete.TableName), id)
		}
	}
	return nil
}

func (f *fakeDynamo) updateLockedNoCondition(tableName, updateExpression string, key, values map[string]types.AttributeValue, names map[string]string) (map[string]types.AttributeValue, error) {
	return f.updateLocked(tableName, updateExpression, "", key, values, names)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// --- expression helpers ---

func resolveName(token string, names map[string]string) string {
	if strings.HasPrefix(token, "#") {
		if name, ok := names[token]; ok {
			return name
		}
	}
	return token
}

func applyUpdate(item map[string]types.AttributeValue, expr string, values map[string]types.AttributeValue, names map[string]string) error {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "SET "):
		for _, clause := range strings.Split(expr[4:], ",") {
			parts := strings.SplitN(clause, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("bad SET clause %q", clause)
			}
			path := strings.TrimSpace(parts[0])
			ref := strings.TrimSpace(parts[1])
			value, ok := values[ref]
			if !ok {
				return fmt.Errorf("unbound value %s", ref)
			}
			if err := setPath(item, path, value, names); err != nil {
				return err
			}
		}
	case strings.HasPrefix(expr, "ADD "):
		for _, clause := range strings.Split(expr[4:], ",") {
			fields := strings.Fields(clause)
			if len(fields) != 2 {
				return fmt.Errorf("bad ADD clause %q", clause)
			}
			attr := resolveName(fields[0], names)
			value, ok := values[fields[1]].(*types.AttributeValueMemberN)
			if !ok {
				return fmt.Errorf("ADD needs a numeric value for %s", attr)
			}
			delta, err := strconv.ParseInt(value.Value, 10, 64)
			if err != nil {
				return err
			}
			current := int64(0)
			if n, ok := item[attr].(*types.AttributeValueMemberN); ok {
				current, _ = strconv.ParseInt(n.Value, 10, 64)
			}
			item[attr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current+delta, 10)}
		}
	default:
		return fmt.Errorf("unsupported update expression %q", expr)
	}
	return nil
}

func setPath(item map[string]types.AttributeValue, path string, value types.AttributeValue, names map[string]string) error {
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		item[resolveName(parts[0], names)] = copyAttr(value)
		return nil
	}
	if len(parts) != 2 {
		return fmt.Errorf("unsupported document path %q", path)
	}
	outer := resolveName(parts[0], names)
	inner := resolveName(parts[1], names)
	m, ok := item[outer].(*types.AttributeValueMemberM)
	if !ok {
		return fmt.Errorf("document path %q into non-map attribute", path)
	}
	next := make(map[string]types.AttributeValue, len(m.Value)+1)
	for k, v := range m.Value {
		next[k] = v
	}
	next[inner] = copyAttr(value)
	item[outer] = &types.AttributeValueMemberM{Value: next}
	return nil
}

func evalCondition(item map[string]types.AttributeValue, cond string, values map[string]types.AttributeValue, names map[string]string) bool {
	if cond == "" {
		return true
	}
	for _, term := range strings.Split(cond, " AND ") {
		if !evalTerm(item, strings.TrimSpace(term), values, names) {
			return false
		}
	}
	return true
}

func evalTerm(item map[string]types.AttributeValue, term string, values map[string]types.AttributeValue, names map[string]string) bool {
	if strings.HasPrefix(term, "attribute_not_exists(") {
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(term, "attribute_not_exists("), ")"), names)
		return item == nil || item[attr] == nil
	}
	if strings.HasPrefix(term, "attribute_exists(") {
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(term, "attribute_exists("), ")"), names)
		return item != nil && item[attr] != nil
	}
	if item == nil {
		return false
	}

	for _, op := range []string{" <> ", " < ", " = "} {
		idx := strings.Index(term, op)
		if idx < 0 {
			continue
		}
		left, ok := resolveOperand(item, strings.TrimSpace(term[:idx]), names)
		if !ok {
			return false
		}
		right, ok := values[strings.TrimSpace(term[idx+len(op):])]
		if !ok {
			return false
		}
		switch op {
		case " = ":
			return attrsEqual(left, right)
		case " <> ":
			return !attrsEqual(left, right)
		case " < ":
			ln, lok := left.(*types.AttributeValueMemberN)
			rn, rok := right.(*types.AttributeValueMemberN)
			if !lok || !rok {
				return false
			}
			lv, _ := strconv.ParseInt(ln.Value, 10, 64)
			rv, _ := strconv.ParseInt(rn.Value, 10, 64)
			return lv < rv
		}
	}
	return false
}

func resolveOperand(item map[string]types.AttributeValue, operand string, names map[string]string) (types.AttributeValue, bool) {
	if strings.HasPrefix(operand, "size(") {
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(operand, "size("), ")"), names)
		l, ok := item[attr].(*types.AttributeValueMemberL)
		if !ok {
			return nil, false
		}
		return &types.AttributeValueMemberN{Value: strconv.Itoa(len(l.Value))}, true
	}
	if open := strings.Index(operand, "["); open >= 0 && strings.HasSuffix(operand, "]") {
		attr := resolveName(operand[:open], names)
		index, err := strconv.Atoi(operand[open+1 : len(operand)-1])
		if err != nil {
			return nil, false
		}
		l, ok := item[attr].(*types.AttributeValueMemberL)
		if !ok || index >= len(l.Value) {
			return nil, false
		}
		return l.Value[index], true
	}
	v, ok := item[resolveName(operand, names)]
	return v, ok
}

func parseEquality(expr string, values map[string]types.AttributeValue, names map[string]string) (string, types.AttributeValue, error) {
	parts := strings.SplitN(expr, "=", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("bad key condition %q", expr)
	}
	attr := resolveName(strings.TrimSpace(parts[0]), names)
	value, ok := values[strings.TrimSpace(parts[1])]
	if !ok {
		return "", nil, fmt.Errorf("unbound value in key condition %q", expr)
	}
	return attr, value, nil
}

func attrsEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		an, _ := strconv.ParseInt(av.Value, 10, 64)
		bn, _ := strconv.ParseInt(bv.Value, 10, 64)
		return an == bn
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func sortByNumericAttr(items []map[string]types.AttributeValue, attr string, descending bool) {
	numeric := func(item map[string]types.AttributeValue) int64 {
		if n, ok := item[attr].(*types.AttributeValueMemberN); ok {
			v, _ := strconv.ParseInt(n.Value, 10, 64)
			return v
		}
		return 0
	}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			less := numeric(items[j]) < numeric(items[j-1])
			if descending {
				less = numeric(items[j]) > numeric(items[j-1])
			}
			if !less {
				break
			}
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = copyAttr(v)
	}
	return out
}

func copyAttr(v types.AttributeValue) types.AttributeValue {
	switch t := v.(type) {
	case *types.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: t.Value}
	case *types.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: t.Value}
	case *types.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: t.Value}
	case *types.AttributeValueMemberL:
		values := make([]types.AttributeValue, len(t.Value))
		for i, inner := range t.Value {
			values[i] = copyAttr(inner)
		}
		return &types.AttributeValueMemberL{Value: values}
	case *types.AttributeValueMemberM:
		values := make(map[string]types.AttributeValue, len(t.Value))
		for k, inner := range t.Value {
			values[k] = copyAttr(inner)
		}
		return &types.AttributeValueMemberM{Value: values}
	}
	return v
}
