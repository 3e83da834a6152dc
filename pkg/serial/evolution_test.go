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
	"math"
	"reflect"
	"strconv"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/garden-serial/pkg/serial/schema"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

// 每个辅助函数声明同名的 Player，模拟同一类型在不同进程中的两个版本。

func writePlayerWithNick(repo *Repository) ([]byte, error) {
	type Player struct {
		Name string
		Age  int32
		Nick string
	}
	return repo.Marshal(Player{Name: "bob", Age: 30, Nick: "bobby"})
}

func writePlayerWithYears(repo *Repository) ([]byte, error) {
	type Player struct {
		Name  string
		Years int32
	}
	return repo.Marshal(Player{Name: "carol", Years: 41})
}

func writePlayerWithTextAge(repo *Repository) ([]byte, schema.UID, error) {
	type Player struct {
		Name string
		Age  string
	}
	ser, err := repo.Resolve(reflect.TypeOf(Player{}))
	if err != nil {
		return nil, 0, err
	}
	data, err := repo.Marshal(&Player{Name: "dave", Age: "27"})
	return data, ser.UID(), err
}

func writeTeamWithWideIDs(repo *Repository) ([]byte, error) {
	type Team struct {
		IDs    []int64
		Scores map[string]int64
	}
	return repo.Marshal(Team{IDs: []int64{1, 2}, Scores: map[string]int64{"a": 7}})
}

func writeTeamWithNarrowIDs(repo *Repository) ([]byte, error) {
	type Team struct {
		IDs    []int32
		Scores map[string]int8
	}
	return repo.Marshal(Team{IDs: []int32{3, -4}, Scores: map[string]int8{"b": -1}})
}

type EvolutionSuite struct {
	suite.Suite
	strategy Strategy
}

func (s *EvolutionSuite) repo() *Repository {
	repo, err := NewRepository(WithStrategy(s.strategy))
	s.Require().NoError(err)
	return repo
}

func (s *EvolutionSuite) TestAddedAndRemovedFields() {
	data, err := writePlayerWithNick(s.repo())
	s.Require().NoError(err)

	type Player struct {
		Name  string
		Age   int32
		Level int32 `serial:",default=7"`
	}
	var p Player
	s.Require().NoError(s.repo().Unmarshal(data, &p))
	s.Equal(Player{Name: "bob", Age: 30, Level: 7}, p)
}

func (s *EvolutionSuite) TestRegisteredLocalType() {
	data, err := writePlayerWithNick(s.repo())
	s.Require().NoError(err)

	type Player struct {
		Name string
		Age  int64
	}
	reader := s.repo()
	s.Require().NoError(reader.Register(&Player{}))

	// 按类型名绑定到本地类型，int32 拓宽为 int64。
	x, err := reader.Decode(data)
	s.Require().NoError(err)
	s.Equal(Player{Name: "bob", Age: 30}, x)
	s.EqualValues(0, reader.Stats().Placeholders)
}

func (s *EvolutionSuite) TestRenamedField() {
	data, err := writePlayerWithYears(s.repo())
	s.Require().NoError(err)

	type Player struct {
		Name string
		Age  int32 `serial:",from=Years"`
	}
	var p Player
	s.Require().NoError(s.repo().Unmarshal(data, &p))
	s.Equal(Player{Name: "carol", Age: 41}, p)
}

func (s *EvolutionSuite) TestIncompatibleThenConverter() {
	data, _, err := writePlayerWithTextAge(s.repo())
	s.Require().NoError(err)

	type Player struct {
		Name string
		Age  int64
	}
	reader := s.repo()
	var p *Player
	err = reader.Unmarshal(data, &p)
	s.ErrorIs(err, merr.ErrEvolution)

	reader.RegisterConverter("string", "int64", func(old any) (any, error) {
		return strconv.ParseInt(old.(string), 10, 64)
	})
	s.Require().NoError(reader.Unmarshal(data, &p))
	s.Equal(&Player{Name: "dave", Age: 27}, p)

	reader.RegisterConverter("string", "int64", func(old any) (any, error) {
		return nil, errors.New("not a number")
	})
	s.ErrorIs(reader.Unmarshal(data, &p), merr.ErrEvolution)
}

func (s *EvolutionSuite) TestCollectionElementNarrowing() {
	data, err := writeTeamWithWideIDs(s.repo())
	s.Require().NoError(err)

	type Team struct {
		IDs    []int32
		Scores map[string]int64
	}
	reader := s.repo()
	var t Team
	s.ErrorIs(reader.Unmarshal(data, &t), merr.ErrEvolution)

	reader.RegisterConverter("[]int64", "[]int32", func(old any) (any, error) {
		items := reflect.ValueOf(old)
		out := make([]int32, items.Len())
		for i := range out {
			x := reflect.ValueOf(items.Index(i).Interface()).Int()
			if x < math.MinInt32 || x > math.MaxInt32 {
				return nil, errors.Newf("id %d out of range", x)
			}
			out[i] = int32(x)
		}
		return out, nil
	})
	s.Require().NoError(reader.Unmarshal(data, &t))
	s.Equal(Team{IDs: []int32{1, 2}, Scores: map[string]int64{"a": 7}}, t)
}

func (s *EvolutionSuite) TestMapValueNarrowing() {
	data, err := writeTeamWithWideIDs(s.repo())
	s.Require().NoError(err)

	type Team struct {
		IDs    []int64
		Scores map[string]int8
	}
	var t Team
	s.ErrorIs(s.repo().Unmarshal(data, &t), merr.ErrEvolution)

	var top map[string]int8
	scores, err := s.repo().Marshal(map[string]int64{"a": 1})
	s.Require().NoError(err)
	s.ErrorIs(s.repo().Unmarshal(scores, &top), merr.ErrEvolution)
}

func (s *EvolutionSuite) TestCollectionElementWidening() {
	data, err := writeTeamWithNarrowIDs(s.repo())
	s.Require().NoError(err)

	type Team struct {
		IDs    []int64
		Scores map[string]int64
	}
	var t Team
	s.Require().NoError(s.repo().Unmarshal(data, &t))
	s.Equal(Team{IDs: []int64{3, -4}, Scores: map[string]int64{"b": -1}}, t)
}

func (s *EvolutionSuite) TestAlias() {
	data, uid, err := writePlayerWithTextAge(s.repo())
	s.Require().NoError(err)

	type Gamer struct {
		Name string
		Age  string
	}
	reader := s.repo()
	s.Require().NoError(reader.RegisterAlias(reflect.TypeOf(Gamer{}), uid))
	x, err := reader.Decode(data)
	s.Require().NoError(err)
	s.Equal(&Gamer{Name: "dave", Age: "27"}, x)

	var alias bool
	for _, e := range reader.Entries() {
		if e.UID == uid {
			alias = e.Alias
		}
	}
	s.True(alias)

	s.Error(reader.RegisterAlias(reflect.TypeOf(Gamer{}), 3))
}

func (s *EvolutionSuite) TestAliasConflict() {
	reader := s.repo()
	ser, err := reader.Resolve(reflect.TypeOf(Flat{}))
	s.Require().NoError(err)

	type Other struct{ X int32 }
	err = reader.RegisterAlias(reflect.TypeOf(Other{}), ser.UID())
	s.ErrorIs(err, merr.ErrUIDConflict)
}

func (s *EvolutionSuite) TestConflictingDescriptor() {
	reader := s.repo()
	ser, err := reader.Resolve(reflect.TypeOf(Flat{}))
	s.Require().NoError(err)

	other := *ser.Descriptor()
	other.Fields = other.Fields[:1]
	err = reader.Provide(ser.UID(), &other)
	s.ErrorIs(err, merr.ErrUIDConflict)

	err = reader.Provide(schema.Fingerprint(&other)+1, &other)
	s.ErrorIs(err, merr.ErrStreamCorrupted)
	s.ErrorIs(reader.Provide(3, &other), merr.ErrStreamCorrupted)
}

func TestEvolutionDirect(t *testing.T) {
	suite.Run(t, &EvolutionSuite{strategy: StrategyDirect})
}

func TestEvolutionIndirect(t *testing.T) {
	suite.Run(t, &EvolutionSuite{strategy: StrategyIndirect})
}

func TestEvolutionGeneric(t *testing.T) {
	suite.Run(t, &EvolutionSuite{strategy: StrategyGeneric})
}
