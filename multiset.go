package ddbtest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/go-cmp/cmp"
)

// Freeze renders v as a canonical string. Map entries are sorted, so key
// order never matters; list order is preserved; set elements are sorted;
// numbers are reduced to an exact normal form, so "1", "1.0" and "1e0"
// freeze identically. Two values freeze to the same string iff DynamoDB
// considers them the same value.
func Freeze(v types.AttributeValue) (string, error) {
	var sb strings.Builder

	err := freezeValue(&sb, v)
	if err != nil {
		return "", err
	}

	return sb.String(), nil
}

// FreezeItem renders a whole item as a canonical string, ignoring attribute
// order.
func FreezeItem(item Item) (string, error) {
	return Freeze(&types.AttributeValueMemberM{Value: item})
}

// Multiset counts occurrences of frozen item forms.
type Multiset map[string]int

// MultisetOf maps every item through FreezeItem and counts the results.
// Two item slices are equal as multisets regardless of item order, but
// duplicate counts and the order inside list-typed attributes still matter.
func MultisetOf(items []Item) (Multiset, error) {
	ms := make(Multiset, len(items))

	for _, item := range items {
		frozen, err := FreezeItem(item)
		if err != nil {
			return nil, err
		}

		ms[frozen]++
	}

	return ms, nil
}

// Equal reports whether both multisets hold the same forms with the same
// multiplicity.
func (m Multiset) Equal(other Multiset) bool {
	if len(m) != len(other) {
		return false
	}

	for frozen, n := range m {
		if other[frozen] != n {
			return false
		}
	}

	return true
}

// ItemsMatch reports whether a and b contain the same items in any order.
func ItemsMatch(a, b []Item) (bool, error) {
	ma, err := MultisetOf(a)
	if err != nil {
		return false, err
	}

	mb, err := MultisetOf(b)
	if err != nil {
		return false, err
	}

	return ma.Equal(mb), nil
}

// DiffItems compares two item slices as multisets and returns a readable
// diff of the frozen forms, or the empty string when they match.
func DiffItems(want, got []Item) (string, error) {
	mw, err := MultisetOf(want)
	if err != nil {
		return "", err
	}

	mg, err := MultisetOf(got)
	if err != nil {
		return "", err
	}

	return cmp.Diff(mw, mg), nil
}

func freezeValue(sb *strings.Builder, v types.AttributeValue) error {
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		writeToken(sb, "S", av.Value)
	case *types.AttributeValueMemberN:
		normal, err := normalizeNumber(av.Value)
		if err != nil {
			return err
		}

		writeToken(sb, "N", normal)
	case *types.AttributeValueMemberB:
		writeToken(sb, "B", base64.StdEncoding.EncodeToString(av.Value))
	case *types.AttributeValueMemberBOOL:
		writeToken(sb, "BOOL", strconv.FormatBool(av.Value))
	case *types.AttributeValueMemberNULL:
		writeToken(sb, "NULL", strconv.FormatBool(av.Value))
	case *types.AttributeValueMemberSS:
		writeSet(sb, "SS", av.Value)
	case *types.AttributeValueMemberNS:
		members := make([]string, 0, len(av.Value))

		for _, m := range av.Value {
			normal, err := normalizeNumber(m)
			if err != nil {
				return err
			}

			members = append(members, normal)
		}

		writeSet(sb, "NS", members)
	case *types.AttributeValueMemberBS:
		members := make([]string, 0, len(av.Value))
		for _, m := range av.Value {
			members = append(members, base64.StdEncoding.EncodeToString(m))
		}

		writeSet(sb, "BS", members)
	case *types.AttributeValueMemberL:
		sb.WriteString("L[")

		for _, el := range av.Value {
			if err := freezeValue(sb, el); err != nil {
				return err
			}

			sb.WriteByte(',')
		}

		sb.WriteByte(']')
	case *types.AttributeValueMemberM:
		entries := make([]string, 0, len(av.Value))

		for key, el := range av.Value {
			var entry strings.Builder
			writeToken(&entry, "S", key)
			entry.WriteByte('=')

			if err := freezeValue(&entry, el); err != nil {
				return err
			}

			entries = append(entries, entry.String())
		}

		sort.Strings(entries)

		sb.WriteString("M{")
		sb.WriteString(strings.Join(entries, ","))
		sb.WriteByte('}')
	case nil:
		return errors.New("cannot freeze a nil attribute value")
	default:
		return fmt.Errorf("cannot freeze attribute value of type %T", v)
	}

	return nil
}

// writeToken emits a length-prefixed scalar so distinct values can never
// collide once concatenated.
func writeToken(sb *strings.Builder, tag, payload string) {
	sb.WriteString(tag)
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(len(payload)))
	sb.WriteByte(':')
	sb.WriteString(payload)
}

func writeSet(sb *strings.Builder, tag string, members []string) {
	sorted := make([]string, len(members))
	copy(sorted, members)
	sort.Strings(sorted)

	sb.WriteString(tag)
	sb.WriteByte('{')

	for i, m := range sorted {
		if i > 0 {
			sb.WriteByte(',')
		}

		sb.WriteString(strconv.Itoa(len(m)))
		sb.WriteByte(':')
		sb.WriteString(m)
	}

	sb.WriteByte('}')
}

// normalizeNumber reduces a DynamoDB decimal to its exact canonical form.
func normalizeNumber(s string) (string, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return "", fmt.Errorf("invalid number %q", s)
	}

	return r.RatString(), nil
}
