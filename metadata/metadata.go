// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

package metadata

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"
	"github.com/sigstore/sigstore/pkg/signature"
	"golang.org/x/exp/slices"
)

// Root returns a new, empty metadata instance of type Root.
func Root(expires ...time.Time) *Metadata[RootType] {
	if len(expires) == 0 {
		expires = []time.Time{time.Now().UTC()}
	}
	roles := map[string]*Role{}
	for _, r := range TOP_LEVEL_ROLE_NAMES {
		roles[r] = &Role{KeyIDs: []string{}, Threshold: 1}
	}
	return &Metadata[RootType]{
		Signed: RootType{
			Type:        ROOT,
			SpecVersion: SPECIFICATION_VERSION,
			Version:     1,
			Expires:     expires[0],
			Keys:        map[string]*Key{},
			Roles:       roles,
		},
		Signatures: []Signature{},
	}
}

// Snapshot returns a new, empty metadata instance of type Snapshot.
func Snapshot(expires ...time.Time) *Metadata[SnapshotType] {
	if len(expires) == 0 {
		expires = []time.Time{time.Now().UTC()}
	}
	return &Metadata[SnapshotType]{
		Signed: SnapshotType{
			Type:        SNAPSHOT,
			SpecVersion: SPECIFICATION_VERSION,
			Version:     1,
			Expires:     expires[0],
			Meta: map[string]MetaFiles{
				"root.json":    {Version: 1},
				"mirrors.json": {Version: 1},
				IndexFileName:  {Version: 1},
			},
		},
		Signatures: []Signature{},
	}
}

// Timestamp returns a new, empty metadata instance of type Timestamp.
func Timestamp(expires ...time.Time) *Metadata[TimestampType] {
	if len(expires) == 0 {
		expires = []time.Time{time.Now().UTC()}
	}
	return &Metadata[TimestampType]{
		Signed: TimestampType{
			Type:        TIMESTAMP,
			SpecVersion: SPECIFICATION_VERSION,
			Version:     1,
			Expires:     expires[0],
			Meta: map[string]MetaFiles{
				"snapshot.json": {Version: 1},
			},
		},
		Signatures: []Signature{},
	}
}

// Mirrors returns a new, empty metadata instance of type Mirrors.
func Mirrors(expires ...time.Time) *Metadata[MirrorsType] {
	if len(expires) == 0 {
		expires = []time.Time{time.Now().UTC()}
	}
	return &Metadata[MirrorsType]{
		Signed: MirrorsType{
			Type:        MIRRORS,
			SpecVersion: SPECIFICATION_VERSION,
			Version:     1,
			Expires:     expires[0],
			Mirrors:     []Mirror{},
		},
		Signatures: []Signature{},
	}
}

// PackageFile returns a new, empty PackageFiles instance.
func PackageFile() *PackageFiles {
	return &PackageFiles{Length: 0, Hashes: Hashes{}}
}

// MetaFile returns a new MetaFiles instance pinned to the given version.
func MetaFile(version int64) *MetaFiles {
	if version < 1 {
		GetLogger().Info("attempting to set incorrect version for MetaFile", "version", version)
		version = 1
	}
	return &MetaFiles{Length: 0, Hashes: Hashes{}, Version: version}
}

// FromFile loads metadata from file.
func (meta *Metadata[T]) FromFile(name string) (*Metadata[T], error) {
	in, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	m, err := fromBytes[T](data)
	if err != nil {
		return nil, err
	}
	*meta = *m
	GetLogger().Info("loaded metadata from file", "file", name)
	return meta, nil
}

// FromBytes deserializes metadata from bytes.
func (meta *Metadata[T]) FromBytes(data []byte) (*Metadata[T], error) {
	m, err := fromBytes[T](data)
	if err != nil {
		return nil, err
	}
	*meta = *m
	GetLogger().Info("loaded metadata from bytes")
	return meta, nil
}

// ToBytes serializes metadata to bytes.
func (meta *Metadata[T]) ToBytes(pretty bool) ([]byte, error) {
	GetLogger().Info("writing metadata to bytes")
	if pretty {
		return json.MarshalIndent(*meta, "", "\t")
	}
	return json.Marshal(*meta)
}

// ToFile saves metadata to file.
func (meta *Metadata[T]) ToFile(name string, pretty bool) error {
	GetLogger().Info("writing metadata to file", "file", name)
	data, err := meta.ToBytes(pretty)
	if err != nil {
		return err
	}
	return os.WriteFile(name, data, 0644)
}

// Sign creates a signature over the canonical JSON of Signed and appends it
// to Signatures.
func (meta *Metadata[T]) Sign(signer signature.Signer) (*Signature, error) {
	payload, err := cjson.EncodeCanonical(meta.Signed)
	if err != nil {
		return nil, err
	}
	sb, err := signer.SignMessage(bytes.NewReader(payload))
	if err != nil {
		return nil, ErrUnsignedMetadata{Msg: "problem signing metadata"}
	}
	publ, err := signer.PublicKey()
	if err != nil {
		return nil, err
	}
	key, err := KeyFromPublicKey(publ)
	if err != nil {
		return nil, err
	}
	sig := &Signature{KeyID: key.ID(), Signature: sb}
	meta.Signatures = append(meta.Signatures, *sig)
	GetLogger().Info("signed metadata", "keyid", key.ID())
	return sig, nil
}

// ClearSignatures empties out Signatures.
func (meta *Metadata[T]) ClearSignatures() {
	meta.Signatures = []Signature{}
}

// CountValidSignatures returns the subset of authorizedKeyIDs whose
// signature over meta's canonical payload verifies against keys. This is
// the building block the trust package uses to enforce role thresholds; it
// performs no version or expiry checks of its own.
func (meta *Metadata[T]) CountValidSignatures(keys map[string]*Key, authorizedKeyIDs []string) (map[string]bool, error) {
	payload, err := cjson.EncodeCanonical(meta.Signed)
	if err != nil {
		return nil, err
	}
	bySig := map[string]Signature{}
	for _, s := range meta.Signatures {
		bySig[s.KeyID] = s
	}
	valid := map[string]bool{}
	for _, keyID := range authorizedKeyIDs {
		key, ok := keys[keyID]
		if !ok {
			continue
		}
		sig, ok := bySig[keyID]
		if !ok {
			continue
		}
		pub, err := key.ToPublicKey()
		if err != nil {
			return nil, err
		}
		h := crypto.Hash(0)
		if key.Type != KeyTypeEd25519 {
			h = crypto.SHA256
		}
		verifier, err := signature.LoadVerifier(pub, h)
		if err != nil {
			return nil, err
		}
		if err := verifier.VerifySignature(bytes.NewReader(sig.Signature), bytes.NewReader(payload)); err != nil {
			GetLogger().Info("signature did not verify", "keyid", keyID)
			continue
		}
		valid[keyID] = true
	}
	return valid, nil
}

// IsExpired reports whether referenceTime is after Signed.Expires.
func (signed *RootType) IsExpired(referenceTime time.Time) bool {
	return referenceTime.After(signed.Expires)
}

func (signed *SnapshotType) IsExpired(referenceTime time.Time) bool {
	return referenceTime.After(signed.Expires)
}

func (signed *TimestampType) IsExpired(referenceTime time.Time) bool {
	return referenceTime.After(signed.Expires)
}

func (signed *MirrorsType) IsExpired(referenceTime time.Time) bool {
	return referenceTime.After(signed.Expires)
}

// VerifyLengthHashes checks that data matches f's declared length and every
// hash algorithm f declares. Used to validate a downloaded metadata document
// against the FileInfo that vouched for it.
func (f *MetaFiles) VerifyLengthHashes(data []byte) error {
	if len(f.Hashes) > 0 {
		if err := verifyHashes(data, f.Hashes); err != nil {
			return err
		}
	}
	if f.Length != 0 {
		if err := verifyLength(data, f.Length); err != nil {
			return err
		}
	}
	return nil
}

// Equal implements the FileInfo equality rule: same length AND at least one
// hash algorithm present on both sides with a matching digest. Used to
// detect whether a role's referenced artifact changed between two
// observations (e.g. cached vs. newly-fetched timestamp's snapshot info),
// as distinct from VerifyLengthHashes, which checks raw bytes against one
// FileInfo and requires every declared hash to match.
func (f MetaFiles) Equal(other MetaFiles) bool {
	if f.Length != other.Length {
		return false
	}
	if len(f.Hashes) == 0 || len(other.Hashes) == 0 {
		return false
	}
	for alg, digest := range f.Hashes {
		if od, ok := other.Hashes[alg]; ok {
			if hex.EncodeToString(digest) == hex.EncodeToString(od) {
				return true
			}
		}
	}
	return false
}

// VerifyLengthHashes checks whether data matches the PackageFiles' declared
// length and hashes. Every declared hash must be present and match.
func (f *PackageFiles) VerifyLengthHashes(data []byte) error {
	if err := verifyHashes(data, f.Hashes); err != nil {
		return err
	}
	return verifyLength(data, f.Length)
}

// FromBytes generates a PackageFiles from data, hashing it with the given
// algorithms (sha256 by default).
func (t *PackageFiles) FromBytes(localPath string, data []byte, hashes ...string) (*PackageFiles, error) {
	var hasher hash.Hash
	pkg := &PackageFiles{Hashes: map[string]HexBytes{}}
	if len(hashes) == 0 {
		hashes = []string{"sha256"}
	}
	pkg.Length = int64(len(data))
	for _, v := range hashes {
		switch v {
		case "sha256":
			hasher = sha256.New()
		case "sha512":
			hasher = sha512.New()
		default:
			return nil, ErrValue{Msg: fmt.Sprintf("unsupported hashing algorithm - %s", v)}
		}
		if _, err := hasher.Write(data); err != nil {
			return nil, err
		}
		pkg.Hashes[v] = hasher.Sum(nil)
	}
	pkg.Path = localPath
	return pkg, nil
}

// fromBytes returns a *Metadata[T] from data, after verifying that data's
// declared "_type" matches T and that signature key IDs are unique.
func fromBytes[T Roles](data []byte) (*Metadata[T], error) {
	meta := &Metadata[T]{}
	if err := checkType[T](data); err != nil {
		if errors.Is(err, ErrVerificationDeserialization{}) {
			return nil, err
		}
		return nil, ErrVerificationDeserialization{Cause: err}
	}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, ErrVerificationDeserialization{Cause: err}
	}
	if err := checkUniqueSignatures(*meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func checkUniqueSignatures[T Roles](meta Metadata[T]) error {
	seen := []string{}
	for _, sig := range meta.Signatures {
		if slices.Contains(seen, sig.KeyID) {
			return ErrValue{Msg: fmt.Sprintf("multiple signatures found for key ID %s", sig.KeyID)}
		}
		seen = append(seen, sig.KeyID)
	}
	return nil
}

func checkType[T Roles](data []byte) error {
	var m map[string]any
	i := any(new(T))
	if err := json.Unmarshal(data, &m); err != nil {
		return ErrVerificationDeserialization{Cause: err}
	}
	signedObj, ok := m["signed"].(map[string]any)
	if !ok {
		return ErrValue{Msg: "missing signed field"}
	}
	signedType, _ := signedObj["_type"].(string)
	switch i.(type) {
	case *RootType:
		if ROOT != signedType {
			return ErrValue{Msg: fmt.Sprintf("expected metadata type %s, got %s", ROOT, signedType)}
		}
	case *SnapshotType:
		if SNAPSHOT != signedType {
			return ErrValue{Msg: fmt.Sprintf("expected metadata type %s, got %s", SNAPSHOT, signedType)}
		}
	case *TimestampType:
		if TIMESTAMP != signedType {
			return ErrValue{Msg: fmt.Sprintf("expected metadata type %s, got %s", TIMESTAMP, signedType)}
		}
	case *MirrorsType:
		if MIRRORS != signedType {
			return ErrValue{Msg: fmt.Sprintf("expected metadata type %s, got %s", MIRRORS, signedType)}
		}
	default:
		return ErrValue{Msg: fmt.Sprintf("unrecognized metadata type - %s", signedType)}
	}
	return nil
}

func verifyLength(data []byte, length int64) error {
	n := int64(len(data))
	if length != n {
		return ErrLengthOrHashMismatch{Msg: fmt.Sprintf("length verification failed - expected %d, got %d", length, n)}
	}
	return nil
}

func verifyHashes(data []byte, hashes Hashes) error {
	var hasher hash.Hash
	for k, v := range hashes {
		switch k {
		case "sha256":
			hasher = sha256.New()
		case "sha512":
			hasher = sha512.New()
		default:
			return ErrLengthOrHashMismatch{Msg: fmt.Sprintf("hash verification failed - unknown hashing algorithm - %s", k)}
		}
		hasher.Write(data)
		if hex.EncodeToString(v) != hex.EncodeToString(hasher.Sum(nil)) {
			return ErrLengthOrHashMismatch{Msg: fmt.Sprintf("hash verification failed - mismatch for algorithm %s", k)}
		}
	}
	return nil
}

// AddKey adds a new signing key for role.
func (signed *RootType) AddKey(key *Key, role string) error {
	if _, ok := signed.Roles[role]; !ok {
		return ErrValue{Msg: fmt.Sprintf("role %s doesn't exist", role)}
	}
	if !slices.Contains(signed.Roles[role].KeyIDs, key.ID()) {
		signed.Roles[role].KeyIDs = append(signed.Roles[role].KeyIDs, key.ID())
	}
	signed.Keys[key.ID()] = key
	return nil
}

// RevokeKey removes keyID from role and, if unused elsewhere, from Keys.
func (signed *RootType) RevokeKey(keyID, role string) error {
	if _, ok := signed.Roles[role]; !ok {
		return ErrValue{Msg: fmt.Sprintf("role %s doesn't exist", role)}
	}
	if !slices.Contains(signed.Roles[role].KeyIDs, keyID) {
		return ErrValue{Msg: fmt.Sprintf("key with id %s is not used by %s", keyID, role)}
	}
	filtered := []string{}
	for _, k := range signed.Roles[role].KeyIDs {
		if k != keyID {
			filtered = append(filtered, k)
		}
	}
	signed.Roles[role].KeyIDs = filtered
	for _, r := range signed.Roles {
		if slices.Contains(r.KeyIDs, keyID) {
			return nil
		}
	}
	delete(signed.Keys, keyID)
	return nil
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || len(data)%2 != 0 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("invalid JSON hex bytes")
	}
	res := make([]byte, hex.DecodedLen(len(data)-2))
	if _, err := hex.Decode(res, data[1:len(data)-1]); err != nil {
		return err
	}
	*b = res
	return nil
}

func (b HexBytes) MarshalJSON() ([]byte, error) {
	res := make([]byte, hex.EncodedLen(len(b))+2)
	res[0] = '"'
	res[len(res)-1] = '"'
	hex.Encode(res[1:], b)
	return res, nil
}

func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// PathHexDigest returns the sha256 hex digest of s, used to derive the
// deterministic, layout-derived lookup path for a package in the index.
func PathHexDigest(s string) string {
	b := sha256.Sum256([]byte(s))
	return hex.EncodeToString(b[:])
}
