// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package extract turns fetched HTML pages into documents: article fields
// (title, author, publish date, body text) when the page looks like a news
// article, and the outgoing links of every page.
//
// Author and publish date come from ordered fallback sources (meta tags, then
// JSON-LD objects). Each source yields a Field that is either present with a
// value or absent, and the first present one wins.
package extract
