// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serial

import (
	"io"
	"slices"

	"github.com/blang/semver/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
	"github.com/lk2023060901/garden-serial/pkg/serial/wire"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

const snapshotMagic = "GSER"

var (
	// SnapshotVersion 当前写出的快照格式版本。
	SnapshotVersion = semver.MustParse("1.0.0")
	// snapshotRange 能读取的快照版本范围。
	snapshotRange = semver.MustParseRange(snapshotRangeText)
)

// SnapshotAlias 快照中记录的别名：流中的类型标识对应本地类型名。
type SnapshotAlias struct {
	UID  schema.UID
	Type string
}

// Snapshot 快照的内容，描述符按类型标识排序。
type Snapshot struct {
	Version     semver.Version
	Descriptors map[schema.UID]*schema.TypeDescriptor
	Aliases     []SnapshotAlias
}

// UIDs 按顺序返回快照中的类型标识。
func (s *Snapshot) UIDs() []schema.UID {
	uids := make([]schema.UID, 0, len(s.Descriptors))
	for uid := range s.Descriptors {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	return uids
}

// snapshot 收集流中登记的描述符与本地生成的非保留描述符。
func (r *Repository) snapshot() *Snapshot {
	s := r.state.Load()
	snap := &Snapshot{
		Version:     SnapshotVersion,
		Descriptors: make(map[schema.UID]*schema.TypeDescriptor, len(s.byUID)+len(s.learned)),
	}
	for uid, desc := range s.learned {
		snap.Descriptors[uid] = desc
	}
	for uid, b := range s.byUID {
		if uid.Reserved() {
			continue
		}
		if _, ok := snap.Descriptors[uid]; !ok {
			snap.Descriptors[uid] = b.stored
		}
	}
	for uid, t := range s.aliases {
		snap.Aliases = append(snap.Aliases, SnapshotAlias{UID: uid, Type: schema.TypeName(t)})
	}
	slices.SortFunc(snap.Aliases, func(a, b SnapshotAlias) int {
		switch {
		case a.UID < b.UID:
			return -1
		case a.UID > b.UID:
			return 1
		}
		return 0
	})
	return snap
}

// SaveSnapshot 将所有已知描述符写入 w，另一个进程加载后可以直接读取不带描述符的流。
func (r *Repository) SaveSnapshot(w io.Writer) error {
	snap := r.snapshot()
	ww := wire.NewWriter(w)
	defer ww.Release()

	ww.WriteRaw([]byte(snapshotMagic))
	ww.WriteString(snap.Version.String())
	uids := snap.UIDs()
	ww.WriteUvarint(uint64(len(uids)))
	for _, uid := range uids {
		ww.WriteUvarint(uint64(uid))
		schema.WriteDescriptor(ww, snap.Descriptors[uid])
	}
	ww.WriteUvarint(uint64(len(snap.Aliases)))
	for _, a := range snap.Aliases {
		ww.WriteUvarint(uint64(a.UID))
		ww.WriteString(a.Type)
	}
	if err := ww.Flush(); err != nil {
		return merr.WrapErrIoFailed("snapshot", err)
	}
	r.Logger().Info("snapshot saved", zap.Int("descriptors", len(uids)), zap.Int("aliases", len(snap.Aliases)))
	return nil
}

// ReadSnapshot 解析快照，不修改任何仓库。
func ReadSnapshot(src io.Reader) (*Snapshot, error) {
	rd := wire.NewReader(src)
	magic, err := rd.ReadFull(len(snapshotMagic))
	if err != nil {
		return nil, err
	}
	if string(magic) != snapshotMagic {
		return nil, merr.WrapErrStreamCorrupted("not a snapshot", "magic="+string(magic))
	}
	raw, err := rd.ReadString()
	if err != nil {
		return nil, err
	}
	version, err := semver.Parse(raw)
	if err != nil {
		return nil, merr.WrapErrSnapshotVersion(raw, snapshotRangeText)
	}
	if !snapshotRange(version) {
		return nil, merr.WrapErrSnapshotVersion(raw, snapshotRangeText)
	}

	n, err := rd.ReadLength()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Version: version, Descriptors: make(map[schema.UID]*schema.TypeDescriptor, n)}
	for i := 0; i < n; i++ {
		uid, err := rd.ReadUvarint()
		if err != nil {
			return nil, err
		}
		desc, err := schema.ReadDescriptor(rd)
		if err != nil {
			return nil, err
		}
		snap.Descriptors[schema.UID(uid)] = desc
	}
	n, err = rd.ReadLength()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		uid, err := rd.ReadUvarint()
		if err != nil {
			return nil, err
		}
		name, err := rd.ReadString()
		if err != nil {
			return nil, err
		}
		snap.Aliases = append(snap.Aliases, SnapshotAlias{UID: schema.UID(uid), Type: name})
	}
	return snap, nil
}

const snapshotRangeText = ">=1.0.0 <2.0.0"

// LoadSnapshot 登记快照中的描述符。与已知描述符冲突时返回错误，已经登记的不会回滚。
// 别名只在本地已经知道目标类型名时生效。
func (r *Repository) LoadSnapshot(src io.Reader) error {
	snap, err := ReadSnapshot(src)
	if err != nil {
		return err
	}
	var errs []error
	for _, uid := range snap.UIDs() {
		if err := r.Provide(uid, snap.Descriptors[uid]); err != nil {
			errs = append(errs, errors.Wrapf(err, "load descriptor %s", uid))
		}
	}
	for _, a := range snap.Aliases {
		t, ok := r.state.Load().byName[a.Type]
		if !ok {
			r.Logger().Warn("skip alias of unknown local type", log.FieldUID(uint64(a.UID)), log.FieldType(a.Type))
			continue
		}
		if err := r.RegisterAlias(t, a.UID); err != nil {
			errs = append(errs, err)
		}
	}
	r.Logger().Info("snapshot loaded", zap.String("version", snap.Version.String()),
		zap.Int("descriptors", len(snap.Descriptors)), zap.Int("aliases", len(snap.Aliases)), zap.Int("errors", len(errs)))
	return merr.Combine(errs...)
}
