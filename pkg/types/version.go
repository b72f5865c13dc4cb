// Copyright 2025 AUTHORS
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

package types

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// versionRollover is the component value at which an increment carries into
// the next component.
const versionRollover = 10

// Version is the three-component version stamped onto built images.
type Version struct {
	Major int `json:"major" bson:"major"`
	Minor int `json:"minor" bson:"minor"`
	Patch int `json:"patch" bson:"patch"`
}

// Increment bumps the patch component, rolling overflow into minor and
// minor overflow into major.
func (v *Version) Increment() {
	v.Patch++
	if v.Patch == versionRollover {
		v.Patch = 0
		v.Minor++
		if v.Minor == versionRollover {
			v.Minor = 0
			v.Major++
		}
	}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsZero reports whether the version is the zero value, i.e. never built.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Patch == 0
}

// VersionFromTag parses an image tag such as "1.2.3" or "v1.2.3" back into
// a Version. Tags that are not versions (e.g. "latest") return an error.
func VersionFromTag(tag string) (Version, error) {
	sv, err := semver.NewVersion(tag)
	if err != nil {
		return Version{}, fmt.Errorf("tag %q is not a version: %v", tag, err)
	}
	return Version{
		Major: int(sv.Major()),
		Minor: int(sv.Minor()),
		Patch: int(sv.Patch()),
	}, nil
}
