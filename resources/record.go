package resources

import (
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// Record is a single table item in the DynamoDB wire representation.
// Attribute values are kept as *dynamodb.AttributeValue so that string,
// number, boolean, null, and nested map/list values round-trip losslessly
// through snapshot files.
type Record map[string]*dynamodb.AttributeValue

// Copy returns a shallow copy of the record. Attribute values are shared;
// the rename transform only moves values between keys, it never mutates them.
func (r Record) Copy() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// KeyString extracts the value of the named key attribute as a string.
// DynamoDB primary keys are scalar (S or N), so those are the only two
// representations considered.
func (r Record) KeyString(attr string) (string, bool) {
	av, ok := r[attr]
	if !ok || av == nil {
		return "", false
	}
	if av.S != nil {
		return *av.S, true
	}
	if av.N != nil {
		return *av.N, true
	}
	return "", false
}
