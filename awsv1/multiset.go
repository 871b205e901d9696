package awsv1

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/google/go-cmp/cmp"

	"github.com/truora/ddbtest"
)

// Freeze renders v as a canonical string, producing the same form the root
// package produces for the equivalent SDK v2 value.
func Freeze(v *dynamodb.AttributeValue) (string, error) {
	var sb strings.Builder

	err := freezeValue(&sb, v)
	if err != nil {
		return "", err
	}

	return sb.String(), nil
}

// FreezeItem renders a whole item as a canonical string, ignoring attribute
// order. The empty item freezes to the same form in both SDK flavors.
func FreezeItem(item Item) (string, error) {
	if item == nil {
		item = Item{}
	}

	return Freeze(&dynamodb.AttributeValue{M: item})
}

// MultisetOf maps every item through FreezeItem and counts the results. The
// result compares cleanly against multisets built by the root package.
func MultisetOf(items []Item) (ddbtest.Multiset, error) {
	ms := make(ddbtest.Multiset, len(items))

	for _, item := range items {
		frozen, err := FreezeItem(item)
		if err != nil {
			return nil, err
		}

		ms[frozen]++
	}

	return ms, nil
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

// freezeValue walks the v1 struct representation. Unlike v2's one-member
// interface types, the struct could carry several members at once; the
// first set member in the fixed order below wins, matching how the service
// itself rejects multi-member values before they ever reach a reader.
func freezeValue(sb *strings.Builder, v *dynamodb.AttributeValue) error {
	switch {
	case v == nil:
		return errors.New("cannot freeze a nil attribute value")
	case v.S != nil:
		writeToken(sb, "S", aws.StringValue(v.S))
	case v.N != nil:
		normal, err := normalizeNumber(aws.StringValue(v.N))
		if err != nil {
			return err
		}

		writeToken(sb, "N", normal)
	case v.B != nil:
		writeToken(sb, "B", base64.StdEncoding.EncodeToString(v.B))
	case v.BOOL != nil:
		writeToken(sb, "BOOL", strconv.FormatBool(aws.BoolValue(v.BOOL)))
	case v.NULL != nil:
		writeToken(sb, "NULL", strconv.FormatBool(aws.BoolValue(v.NULL)))
	case v.SS != nil:
		writeSet(sb, "SS", aws.StringValueSlice(v.SS))
	case v.NS != nil:
		members := make([]string, 0, len(v.NS))

		for _, m := range v.NS {
			normal, err := normalizeNumber(aws.StringValue(m))
			if err != nil {
				return err
			}

			members = append(members, normal)
		}

		writeSet(sb, "NS", members)
	case v.BS != nil:
		members := make([]string, 0, len(v.BS))
		for _, m := range v.BS {
			members = append(members, base64.StdEncoding.EncodeToString(m))
		}

		writeSet(sb, "BS", members)
	case v.L != nil:
		sb.WriteString("L[")

		for _, el := range v.L {
			if err := freezeValue(sb, el); err != nil {
				return err
			}

			sb.WriteByte(',')
		}

		sb.WriteByte(']')
	case v.M != nil:
		entries := make([]string, 0, len(v.M))

		for key, el := range v.M {
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
	default:
		return errors.New("cannot freeze an empty attribute value")
	}

	return nil
}

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

func normalizeNumber(s string) (string, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return "", fmt.Errorf("invalid number %q", s)
	}

	return r.RatString(), nil
}
