// ABOUTME: Converts registry types to and from google.protobuf.Struct messages
// ABOUTME: Integers are decimal strings, hashes and blobs are 0x-hex

package ledger

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names, mirroring the contract ABI.
const (
	fieldStudyID        = "studyId"
	fieldStudyName      = "studyName"
	fieldDescription    = "description"
	fieldCreator        = "creator"
	fieldCreatedAt      = "createdAt"
	fieldIsActive       = "isActive"
	fieldDataCount      = "dataCount"
	fieldCount          = "count"
	fieldTotalRecords   = "totalRecords"
	fieldEncryptedSum   = "encryptedSum"
	fieldMinValue       = "minValue"
	fieldMaxValue       = "maxValue"
	fieldLastUpdated    = "lastUpdated"
	fieldEncryptedValue = "encryptedValue"
	fieldAttestation    = "attestation"
	fieldTxHash         = "txHash"
	fieldBlockNumber    = "blockNumber"
	fieldStatus         = "status"
	fieldRevertReason   = "revertReason"
	fieldEvents         = "events"
	fieldName           = "name"
	fieldArgs           = "args"
)

// maxExactFloat is the largest integer a float64 holds without loss.
const maxExactFloat = 1 << 53

func uintValue(v uint64) *structpb.Value {
	return structpb.NewStringValue(strconv.FormatUint(v, 10))
}

func timeValue(t time.Time) *structpb.Value {
	if t.IsZero() {
		return uintValue(0)
	}
	return uintValue(uint64(t.Unix()))
}

func field(s *structpb.Struct, key string) (*structpb.Value, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedResponse, key)
	}
	return v, nil
}

func getUint(s *structpb.Struct, key string) (uint64, error) {
	v, err := field(s, key)
	if err != nil {
		return 0, err
	}

	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q is not an unsigned integer", ErrMalformedResponse, key, k.StringValue)
		}
		return n, nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f > maxExactFloat {
			return 0, fmt.Errorf("%w: %s %v is not an exact unsigned integer", ErrMalformedResponse, key, f)
		}
		return uint64(f), nil
	default:
		return 0, fmt.Errorf("%w: %s has unexpected kind %T", ErrMalformedResponse, key, k)
	}
}

func getString(s *structpb.Struct, key string) (string, error) {
	v, err := field(s, key)
	if err != nil {
		return "", err
	}
	k, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformedResponse, key)
	}
	return k.StringValue, nil
}

func getBool(s *structpb.Struct, key string) (bool, error) {
	v, err := field(s, key)
	if err != nil {
		return false, err
	}
	k, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, fmt.Errorf("%w: %s is not a bool", ErrMalformedResponse, key)
	}
	return k.BoolValue, nil
}

func getTime(s *structpb.Struct, key string) (time.Time, error) {
	sec, err := getUint(s, key)
	if err != nil {
		return time.Time{}, err
	}
	if sec == 0 {
		return time.Time{}, nil
	}
	return time.Unix(int64(sec), 0).UTC(), nil
}

func getBytes(s *structpb.Struct, key string) ([]byte, error) {
	raw, err := getString(s, key)
	if err != nil {
		return nil, err
	}
	b, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, key, err)
	}
	return b, nil
}

func getHash(s *structpb.Struct, key string) (common.Hash, error) {
	b, err := getBytes(s, key)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %s is %d bytes, want %d", ErrMalformedResponse, key, len(b), common.HashLength)
	}
	return common.BytesToHash(b), nil
}

func getAddress(s *structpb.Struct, key string) (common.Address, error) {
	raw, err := getString(s, key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", ErrMalformedResponse, key, raw)
	}
	return common.HexToAddress(raw), nil
}

func studyIDRequest(id uint64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldStudyID: uintValue(id),
	}}
}

func encodeStudy(st *Study) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldStudyName:   structpb.NewStringValue(st.Name),
		fieldDescription: structpb.NewStringValue(st.Description),
		fieldCreator:     structpb.NewStringValue(st.Creator.Hex()),
		fieldCreatedAt:   timeValue(st.CreatedAt),
		fieldIsActive:    structpb.NewBoolValue(st.IsActive),
		fieldDataCount:   uintValue(st.DataCount),
	}}
}

// decodeStudy builds a Study; the id is not on the wire and comes from the request.
func decodeStudy(id uint64, s *structpb.Struct) (*Study, error) {
	st := &Study{ID: id}
	var err error

	if st.Name, err = getString(s, fieldStudyName); err != nil {
		return nil, err
	}
	if st.Description, err = getString(s, fieldDescription); err != nil {
		return nil, err
	}
	if st.Creator, err = getAddress(s, fieldCreator); err != nil {
		return nil, err
	}
	if st.CreatedAt, err = getTime(s, fieldCreatedAt); err != nil {
		return nil, err
	}
	if st.IsActive, err = getBool(s, fieldIsActive); err != nil {
		return nil, err
	}
	if st.DataCount, err = getUint(s, fieldDataCount); err != nil {
		return nil, err
	}
	return st, nil
}

func encodeStats(st *StudyStats) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldTotalRecords: uintValue(st.TotalRecords),
		fieldEncryptedSum: structpb.NewStringValue(st.EncryptedSum.Hex()),
		fieldMinValue:     uintValue(st.MinValue),
		fieldMaxValue:     uintValue(st.MaxValue),
		fieldLastUpdated:  timeValue(st.LastUpdated),
	}}
}

func decodeStats(s *structpb.Struct) (*StudyStats, error) {
	st := &StudyStats{}
	var err error

	if st.TotalRecords, err = getUint(s, fieldTotalRecords); err != nil {
		return nil, err
	}
	if st.EncryptedSum, err = getHash(s, fieldEncryptedSum); err != nil {
		return nil, err
	}
	if st.MinValue, err = getUint(s, fieldMinValue); err != nil {
		return nil, err
	}
	if st.MaxValue, err = getUint(s, fieldMaxValue); err != nil {
		return nil, err
	}
	if st.LastUpdated, err = getTime(s, fieldLastUpdated); err != nil {
		return nil, err
	}
	return st, nil
}

func encodeSubmission(sub *Submission) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldStudyID:        uintValue(sub.StudyID),
		fieldEncryptedValue: structpb.NewStringValue(sub.Handle.Hex()),
		fieldAttestation:    structpb.NewStringValue(hexutil.Encode(sub.Attestation)),
		fieldMinValue:       uintValue(sub.MinValue),
		fieldMaxValue:       uintValue(sub.MaxValue),
	}}
}

func decodeSubmission(s *structpb.Struct) (*Submission, error) {
	sub := &Submission{}
	var err error

	if sub.StudyID, err = getUint(s, fieldStudyID); err != nil {
		return nil, err
	}
	if sub.Handle, err = getHash(s, fieldEncryptedValue); err != nil {
		return nil, err
	}
	if sub.Attestation, err = getBytes(s, fieldAttestation); err != nil {
		return nil, err
	}
	if sub.MinValue, err = getUint(s, fieldMinValue); err != nil {
		return nil, err
	}
	if sub.MaxValue, err = getUint(s, fieldMaxValue); err != nil {
		return nil, err
	}
	return sub, nil
}

func encodeReceipt(r *Receipt) *structpb.Struct {
	events := make([]*structpb.Value, 0, len(r.Events))
	for _, ev := range r.Events {
		args := make(map[string]*structpb.Value, len(ev.Args))
		for k, v := range ev.Args {
			args[k] = structpb.NewStringValue(v)
		}
		events = append(events, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			fieldName: structpb.NewStringValue(ev.Name),
			fieldArgs: structpb.NewStructValue(&structpb.Struct{Fields: args}),
		}}))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldTxHash:       structpb.NewStringValue(r.TxHash.Hex()),
		fieldBlockNumber:  uintValue(r.BlockNumber),
		fieldStatus:       structpb.NewStringValue(string(r.Status)),
		fieldRevertReason: structpb.NewStringValue(r.RevertReason),
		fieldEvents:       structpb.NewListValue(&structpb.ListValue{Values: events}),
	}}
}

func decodeReceipt(s *structpb.Struct) (*Receipt, error) {
	r := &Receipt{}
	var err error

	if r.TxHash, err = getHash(s, fieldTxHash); err != nil {
		return nil, err
	}
	if r.BlockNumber, err = getUint(s, fieldBlockNumber); err != nil {
		return nil, err
	}
	status, err := getString(s, fieldStatus)
	if err != nil {
		return nil, err
	}
	switch ReceiptStatus(status) {
	case StatusConfirmed, StatusReverted:
		r.Status = ReceiptStatus(status)
	default:
		return nil, fmt.Errorf("%w: unknown receipt status %q", ErrMalformedResponse, status)
	}
	if v, ok := s.GetFields()[fieldRevertReason]; ok {
		r.RevertReason = v.GetStringValue()
	}

	for _, v := range s.GetFields()[fieldEvents].GetListValue().GetValues() {
		evStruct := v.GetStructValue()
		if evStruct == nil {
			return nil, fmt.Errorf("%w: event is not an object", ErrMalformedResponse)
		}
		name, err := getString(evStruct, fieldName)
		if err != nil {
			return nil, err
		}
		ev := Event{Name: name, Args: make(map[string]string)}
		for k, a := range evStruct.GetFields()[fieldArgs].GetStructValue().GetFields() {
			ev.Args[k] = a.GetStringValue()
		}
		r.Events = append(r.Events, ev)
	}

	return r, nil
}
