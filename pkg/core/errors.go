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

package core

import "errors"

var (
	ErrSession         = errors.New("chat session failed")
	ErrDirectory       = errors.New("user directory lookup failed")
	ErrDelivery        = errors.New("one-time code delivery failed")
	ErrTransport       = errors.New("message transport failed")
	ErrMalformedEvent  = errors.New("malformed event")
	ErrInvalidHandler  = errors.New("invalid handler")
	ErrWaiterCancelled = errors.New("waiter cancelled")
	ErrQueueClosed     = errors.New("queue closed")
	ErrSinkNotFound    = errors.New("sink not found")
)
