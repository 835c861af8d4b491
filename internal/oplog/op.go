package oplog

import "encoding/json"

// Kind discriminates the three mutation shapes an index accepts.
type Kind string

const (
	KindInsertOrUpdate Kind = "insert_or_update"
	KindDelete         Kind = "delete"
	KindSetAttribute   Kind = "set_attribute"
)

// Op is one logical mutation: InsertOrUpdate(docId, hashes), Delete(docId),
// or SetAttribute(name, value). Exactly one of the field groups is
// populated, selected by Kind.
type Op struct {
	Kind Kind `json:"kind"`

	DocID  uint32   `json:"docId,omitempty"`
	Hashes []uint32 `json:"hashes,omitempty"`

	AttrName  string `json:"attrName,omitempty"`
	AttrValue string `json:"attrValue,omitempty"`
}

// InsertOrUpdate builds an Op that replaces docID's hash set.
func InsertOrUpdate(docID uint32, hashes []uint32) Op {
	return Op{Kind: KindInsertOrUpdate, DocID: docID, Hashes: hashes}
}

// DeleteOp builds an Op that tombstones docID.
func DeleteOp(docID uint32) Op {
	return Op{Kind: KindDelete, DocID: docID}
}

// SetAttribute builds an Op that sets an index-level attribute.
func SetAttribute(name, value string) Op {
	return Op{Kind: KindSetAttribute, AttrName: name, AttrValue: value}
}

// Entry pairs an Op with the opId the log assigned it.
type Entry struct {
	OpID uint64
	Op   Op
}

func marshalOp(op Op) ([]byte, error) {
	return json.Marshal(op)
}

func unmarshalOp(data []byte) (Op, error) {
	var op Op
	if err := json.Unmarshal(data, &op); err != nil {
		return Op{}, err
	}
	return op, nil
}
