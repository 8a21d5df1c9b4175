// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

const (
	// QryListPositions lists the exported positions of a video. The table name
	// is substituted; everything else is a query parameter. An empty
	// @person_id matches every person.
	QryListPositions = "SELECT * FROM `%s` " +
		"WHERE video_id = @video_id AND (@person_id = '' OR person_id = @person_id) " +
		"ORDER BY run_id, frame_number, person_id LIMIT @max_rows"
)
