/*
Copyright 2022-2025 The nagare media authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ingest

const (
	VersionHeader = "DASH-IF-Ingest"
	VersionLatest = Version1_2
	Version1_0    = "1.0"
	Version1_1    = "1.1"
	Version1_2    = "1.2"
)

const (
	Identifier1_2           = "http://dashif.org/ingest/v1.2"
	Identifier1_2Interface1 = "http://dashif.org/ingest/v1.2/interface-1"
	Identifier1_2Interface2 = "http://dashif.org/ingest/v1.2/interface-2"
)
