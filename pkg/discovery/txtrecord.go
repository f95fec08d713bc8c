package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeAccessoryTXT creates the TXT records of an accessory server.
func EncodeAccessoryTXT(info *AccessoryInfo) TXTRecordMap {
	sf := "0"
	if !info.Paired {
		sf = "1"
	}
	return TXTRecordMap{
		TXTKeyConfigNumber: strconv.Itoa(info.ConfigNumber),
		TXTKeyFeatureFlags: "0",
		TXTKeyID:           strings.ToUpper(info.ID),
		TXTKeyModel:        info.Model,
		TXTKeyProtocol:     ProtocolVersion,
		TXTKeyStateNumber:  "1",
		TXTKeyStatusFlags:  sf,
		TXTKeyCategory:     strconv.Itoa(info.Category),
	}
}

// DecodeAccessoryTXT parses the TXT records of an accessory server.
func DecodeAccessoryTXT(txt TXTRecordMap) (*AccessoryInfo, error) {
	info := &AccessoryInfo{}

	id, ok := txt[TXTKeyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyID)
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	info.ID = id

	var err error
	if info.ConfigNumber, err = intRecord(txt, TXTKeyConfigNumber); err != nil {
		return nil, err
	}
	if info.Category, err = intRecord(txt, TXTKeyCategory); err != nil {
		return nil, err
	}
	sf, err := intRecord(txt, TXTKeyStatusFlags)
	if err != nil {
		return nil, err
	}
	info.Paired = sf&1 == 0
	info.Model = txt[TXTKeyModel]

	return info, nil
}

func intRecord(txt TXTRecordMap, key string) (int, error) {
	s, ok := txt[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingRequired, key)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, key, s)
	}
	return n, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}
