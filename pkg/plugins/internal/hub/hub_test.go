// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package hub

import "testing"

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := New(4)
	_, a, cancelA := h.Subscribe()
	_, b, cancelB := h.Subscribe()
	defer cancelA()
	defer cancelB()

	if n := h.Broadcast([]byte("x")); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if string(<-a) != "x" || string(<-b) != "x" {
		t.Fatal("unexpected payload")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := New(1)
	_, slow, cancel := h.Subscribe()
	defer cancel()

	h.Broadcast([]byte("1"))
	if n := h.Broadcast([]byte("2")); n != 0 {
		t.Fatalf("expected full subscriber to be skipped, got %d", n)
	}
	if string(<-slow) != "1" {
		t.Fatal("expected first message kept")
	}
}

func TestCancelAndClose(t *testing.T) {
	h := New(1)
	_, ch, cancel := h.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
	if h.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Len())
	}

	_, ch2, _ := h.Subscribe()
	h.Close()
	h.Close()
	if _, ok := <-ch2; ok {
		t.Fatal("expected channel closed after hub close")
	}
	_, ch3, _ := h.Subscribe()
	if _, ok := <-ch3; ok {
		t.Fatal("expected subscription after close to be closed")
	}
}
