/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"sigs.k8s.io/yaml"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/log"
)

const (
	BucketPrefix = "capture_"
	RecordKey    = "record"
)

// ErrNotFound returned when a session or one of its waveforms is not stored
type ErrNotFound struct {
	What string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("Not found: %s", e.What)
}

// Record summarizes one capture session
type Record struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt,omitempty"`
	Device           string    `json:"device"`
	State            string    `json:"state"`
	Error            string    `json:"error,omitempty"`
	TotalSamples     int       `json:"totalSamples"`
	Captured         int       `json:"captured"`
	Triggered        bool      `json:"triggered"`
	TriggerOffset    int       `json:"triggerOffset"`
	OverflowCount    uint64    `json:"overflowCount"`
	Dropped          int       `json:"dropped"`
	AutoStop         bool      `json:"autoStop"`
	SampleIntervalNs uint64    `json:"sampleIntervalNs"`
	Channels         []int     `json:"channels"`
	Files            []string  `json:"files,omitempty"`
}

// Finish copies the outcome of the session into the record
func (r *Record) Finish(res capture.Result) {
	r.FinishedAt = time.Now()
	r.State = res.State.String()
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	r.TotalSamples = res.Session.TotalSamples
	r.Captured = res.Session.NextWrite
	r.Triggered = res.Session.Triggered
	r.TriggerOffset = res.Session.TriggerOffset
	r.OverflowCount = res.Session.OverflowCount
	r.Dropped = res.Session.Dropped
	r.AutoStop = res.Session.AutoStop
}

type Store struct {
	context.Context
	DB *bbolt.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &Store{
		Context: ctx,
		DB:      db,
	}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func BucketName(id string) string {
	return fmt.Sprintf("%s%s", BucketPrefix, id)
}

func waveformKey(ch capture.ChannelID) []byte {
	return []byte(fmt.Sprintf("ch_%02d", ch))
}

// PutRecord creates or replaces the record of the session
func (s *Store) PutRecord(r *Record) error {
	log.Debug("Storing capture record: id: %s state: %s", r.ID, r.State)
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketName(r.ID)))
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put([]byte(RecordKey), data)
	})
}

// PutWaveform stores the waveform under an existing record
func (s *Store) PutWaveform(id string, w capture.Waveform) error {
	log.Debug("Storing waveform: id: %s channel: %d samples: %d", id, w.Channel, len(w.Samples))
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketName(id)))
		if b == nil {
			return ErrNotFound{What: fmt.Sprintf("capture %s", id)}
		}
		data, err := yaml.Marshal(w)
		if err != nil {
			return err
		}
		return b.Put(waveformKey(w.Channel), data)
	})
}

// Sink stores every delivered waveform under the session
func (s *Store) Sink(id string) capture.ResultSink {
	return capture.SinkFunc(func(w capture.Waveform) error {
		return s.PutWaveform(id, w)
	})
}

func (s *Store) Get(id string) (*Record, error) {
	r := &Record{}
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketName(id)))
		if b == nil {
			return ErrNotFound{What: fmt.Sprintf("capture %s", id)}
		}
		data := b.Get([]byte(RecordKey))
		if data == nil {
			return ErrNotFound{What: fmt.Sprintf("record of capture %s", id)}
		}
		return yaml.Unmarshal(data, r)
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns every stored record, oldest first
func (s *Store) List() ([]*Record, error) {
	var records []*Record
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bbolt.Bucket) error {
			data := b.Get([]byte(RecordKey))
			if data == nil {
				log.Warning("Bucket %s has no record", name)
				return nil
			}
			r := &Record{}
			if err := yaml.Unmarshal(data, r); err != nil {
				log.Error("Error while unmarshalling capture record %s: %s", name, err)
				return err
			}
			records = append(records, r)
			return nil
		})
	}); err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
	return records, nil
}

func (s *Store) Waveform(id string, ch capture.ChannelID) (*capture.Waveform, error) {
	w := &capture.Waveform{}
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketName(id)))
		if b == nil {
			return ErrNotFound{What: fmt.Sprintf("capture %s", id)}
		}
		data := b.Get(waveformKey(ch))
		if data == nil {
			return ErrNotFound{What: fmt.Sprintf("channel %d of capture %s", ch, id)}
		}
		return yaml.Unmarshal(data, w)
	}); err != nil {
		return nil, err
	}
	return w, nil
}

// Delete removes the session with all its waveforms
func (s *Store) Delete(id string) error {
	return s.DB.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(BucketName(id)))
		if err == bbolt.ErrBucketNotFound {
			return ErrNotFound{What: fmt.Sprintf("capture %s", id)}
		}
		return err
	})
}
